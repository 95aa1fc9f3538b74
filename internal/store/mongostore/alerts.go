package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"watchlist-service/internal/store"
)

func (d alertDoc) toAlert() store.Alert {
	a := store.Alert{
		ID:           d.ID.Hex(),
		UserID:       d.UserID,
		Symbol:       d.Symbol,
		CompanyName:  d.CompanyName,
		Condition:    d.Condition,
		TargetPrice:  d.TargetPrice,
		Frequency:    d.Frequency,
		IsActive:     d.IsActive,
		TriggerCount: d.TriggerCount,
		CreatedAt:    d.CreatedAt.UTC(),
	}
	if d.LastTriggeredAt != nil {
		t := d.LastTriggeredAt.UTC()
		a.LastTriggeredAt = &t
	}
	return a
}

func (s *Store) CreateAlert(ctx context.Context, a *store.Alert) error {
	now := s.now()
	doc := alertDoc{
		UserID:      a.UserID,
		Symbol:      normalize(a.Symbol),
		CompanyName: strings.TrimSpace(a.CompanyName),
		Condition:   a.Condition,
		TargetPrice: a.TargetPrice,
		Frequency:   a.Frequency,
		IsActive:    a.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res, err := s.alerts.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicateAlert
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = oid
	}
	*a = doc.toAlert()
	return nil
}

func (s *Store) ListAlerts(ctx context.Context, userID string) ([]store.Alert, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return s.findAlerts(ctx, bson.M{"userId": userID}, opts)
}

func (s *Store) ActiveAlerts(ctx context.Context) ([]store.Alert, error) {
	opts := options.Find().SetSort(bson.D{{Key: "symbol", Value: 1}, {Key: "_id", Value: 1}})
	return s.findAlerts(ctx, bson.M{"isActive": true}, opts)
}

func (s *Store) GetAlert(ctx context.Context, userID, id string) (*store.Alert, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, store.ErrNotFound
	}
	var doc alertDoc
	err = s.alerts.FindOne(ctx, bson.M{"_id": oid, "userId": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find alert: %w", err)
	}
	a := doc.toAlert()
	return &a, nil
}

func (s *Store) UpdateAlert(ctx context.Context, userID, id string, u store.AlertUpdate) (*store.Alert, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, store.ErrNotFound
	}
	set := bson.M{"updatedAt": s.now()}
	if u.Condition != nil {
		set["condition"] = *u.Condition
	}
	if u.TargetPrice != nil {
		set["targetPrice"] = *u.TargetPrice
	}
	if u.Frequency != nil {
		set["frequency"] = *u.Frequency
	}
	if u.IsActive != nil {
		set["isActive"] = *u.IsActive
	}

	var doc alertDoc
	err = s.alerts.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "userId": userID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrDuplicateAlert
		}
		return nil, fmt.Errorf("update alert: %w", err)
	}
	a := doc.toAlert()
	return &a, nil
}

func (s *Store) DeleteAlert(ctx context.Context, userID, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return store.ErrNotFound
	}
	res, err := s.alerts.DeleteOne(ctx, bson.M{"_id": oid, "userId": userID})
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RecordTrigger(ctx context.Context, t store.AlertTrigger, keepActive bool) error {
	oid, err := primitive.ObjectIDFromHex(t.AlertID)
	if err != nil {
		return store.ErrNotFound
	}
	if t.TriggeredAt.IsZero() {
		t.TriggeredAt = s.now()
	}
	if _, err := s.triggers.InsertOne(ctx, triggerDoc(t)); err != nil {
		return fmt.Errorf("insert alert trigger: %w", err)
	}
	_, err = s.alerts.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{
			"$set": bson.M{
				"lastTriggeredAt": t.TriggeredAt,
				"isActive":        keepActive,
				"updatedAt":       s.now(),
			},
			"$inc": bson.M{"triggerCount": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("update alert trigger: %w", err)
	}
	return nil
}

func (s *Store) ListTriggers(ctx context.Context, alertID string, limit int) ([]store.AlertTrigger, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "triggeredAt", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.triggers.Find(ctx, bson.M{"alertId": alertID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find alert triggers: %w", err)
	}
	var docs []triggerDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode alert triggers: %w", err)
	}
	out := make([]store.AlertTrigger, 0, len(docs))
	for _, d := range docs {
		t := store.AlertTrigger(d)
		t.TriggeredAt = t.TriggeredAt.UTC()
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) findAlerts(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]store.Alert, error) {
	cur, err := s.alerts.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find alerts: %w", err)
	}
	var docs []alertDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode alerts: %w", err)
	}
	out := make([]store.Alert, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAlert())
	}
	return out, nil
}
