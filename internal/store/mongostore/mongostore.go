package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"watchlist-service/internal/store"
)

const (
	watchlistCollection = "watchlists"
	alertCollection     = "alerts"
	triggerCollection   = "alert_triggers"
)

// Store keeps one watchlist document per user with an embedded items
// array, plus alert and trigger collections.
type Store struct {
	client    *mongo.Client
	watchlist *mongo.Collection
	alerts    *mongo.Collection
	triggers  *mongo.Collection
	now       func() time.Time
}

type watchlistItemDoc struct {
	Symbol      string    `bson:"symbol"`
	CompanyName string    `bson:"companyName"`
	AddedAt     time.Time `bson:"addedAt"`
}

type watchlistDoc struct {
	UserID    string             `bson:"userId"`
	Items     []watchlistItemDoc `bson:"items"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type alertDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	UserID          string             `bson:"userId"`
	Symbol          string             `bson:"symbol"`
	CompanyName     string             `bson:"companyName"`
	Condition       string             `bson:"condition"`
	TargetPrice     float64            `bson:"targetPrice"`
	Frequency       string             `bson:"frequency"`
	IsActive        bool               `bson:"isActive"`
	LastTriggeredAt *time.Time         `bson:"lastTriggeredAt"`
	TriggerCount    int                `bson:"triggerCount"`
	CreatedAt       time.Time          `bson:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt"`
}

type triggerDoc struct {
	AlertID     string    `bson:"alertId"`
	UserID      string    `bson:"userId"`
	Symbol      string    `bson:"symbol"`
	Price       float64   `bson:"price"`
	Delivered   bool      `bson:"delivered"`
	Error       string    `bson:"error,omitempty"`
	TriggeredAt time.Time `bson:"triggeredAt"`
}

func Open(ctx context.Context, uri, database string) (*Store, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo uri is empty")
	}
	if database == "" {
		database = "watchlist"
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(30 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:    client,
		watchlist: db.Collection(watchlistCollection),
		alerts:    db.Collection(alertCollection),
		triggers:  db.Collection(triggerCollection),
		now:       time.Now,
	}
	if err := s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) createIndexes(ctx context.Context) error {
	if _, err := s.watchlist.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "items.symbol", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("create watchlist indexes: %w", err)
	}
	if _, err := s.alerts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "isActive", Value: 1}}},
		{Keys: bson.D{{Key: "isActive", Value: 1}, {Key: "symbol", Value: 1}}},
		{
			Keys: bson.D{
				{Key: "userId", Value: 1},
				{Key: "symbol", Value: 1},
				{Key: "condition", Value: 1},
				{Key: "targetPrice", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}); err != nil {
		return fmt.Errorf("create alert indexes: %w", err)
	}
	if _, err := s.triggers.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "alertId", Value: 1}, {Key: "triggeredAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("create trigger indexes: %w", err)
	}
	return nil
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (s *Store) loadWatchlist(ctx context.Context, userID string) (*watchlistDoc, error) {
	var doc watchlistDoc
	err := s.watchlist.FindOne(ctx, bson.M{"userId": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &watchlistDoc{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find watchlist: %w", err)
	}
	return &doc, nil
}

func newestFirst(items []watchlistItemDoc) []store.WatchlistItem {
	sorted := make([]watchlistItemDoc, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].AddedAt.After(sorted[j].AddedAt)
	})
	out := make([]store.WatchlistItem, 0, len(sorted))
	for _, it := range sorted {
		out = append(out, store.WatchlistItem{Symbol: it.Symbol, CompanyName: it.CompanyName, AddedAt: it.AddedAt.UTC()})
	}
	return out
}

func (s *Store) WatchlistSymbols(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return []string{}, nil
	}
	items, err := s.ListWatchlist(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Symbol)
	}
	return out, nil
}

func (s *Store) ListWatchlist(ctx context.Context, userID string) ([]store.WatchlistItem, error) {
	doc, err := s.loadWatchlist(ctx, userID)
	if err != nil {
		return nil, err
	}
	return newestFirst(doc.Items), nil
}

// AddToWatchlist pushes the item in a single upsert. The filter only
// matches a document that lacks the symbol and has room, so a unique-key
// clash on userId means the symbol is present or the list is full.
func (s *Store) AddToWatchlist(ctx context.Context, userID, symbol, company string) error {
	sym := normalize(symbol)
	now := s.now()

	lastSlot := fmt.Sprintf("items.%d", store.MaxWatchlistItems-1)
	filter := bson.M{
		"userId":       userID,
		"items.symbol": bson.M{"$ne": sym},
		lastSlot:       bson.M{"$exists": false},
	}
	item := watchlistItemDoc{Symbol: sym, CompanyName: strings.TrimSpace(company), AddedAt: now}
	update := bson.M{
		"$push":        bson.M{"items": item},
		"$set":         bson.M{"updatedAt": now},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	_, err := s.watchlist.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("add watchlist item: %w", err)
	}
	in, checkErr := s.IsInWatchlist(ctx, userID, sym)
	if checkErr != nil {
		return checkErr
	}
	if in {
		return store.ErrAlreadyInWatchlist
	}
	return store.ErrWatchlistFull
}

func (s *Store) RemoveFromWatchlist(ctx context.Context, userID, symbol string) error {
	_, err := s.watchlist.UpdateOne(ctx,
		bson.M{"userId": userID},
		bson.M{
			"$pull": bson.M{"items": bson.M{"symbol": normalize(symbol)}},
			"$set":  bson.M{"updatedAt": s.now()},
		},
	)
	if err != nil {
		return fmt.Errorf("remove watchlist item: %w", err)
	}
	return nil
}

func (s *Store) IsInWatchlist(ctx context.Context, userID, symbol string) (bool, error) {
	n, err := s.watchlist.CountDocuments(ctx, bson.M{"userId": userID, "items.symbol": normalize(symbol)})
	if err != nil {
		return false, fmt.Errorf("check watchlist item: %w", err)
	}
	return n > 0, nil
}

func (s *Store) WatchlistUsers(ctx context.Context) ([]string, error) {
	vals, err := s.watchlist.Distinct(ctx, "userId", bson.M{"items.0": bson.M{"$exists": true}})
	if err != nil {
		return nil, fmt.Errorf("distinct watchlist users: %w", err)
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if id, ok := v.(string); ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}
