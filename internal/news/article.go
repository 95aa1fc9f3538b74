package news

import (
	"strconv"
	"strings"

	sdk "github.com/Finnhub-Stock-API/finnhub-go/v2"
)

const (
	companySummaryLimit = 200
	generalSummaryLimit = 150
)

type Article struct {
	ID       int64  `json:"id"`
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	Source   string `json:"source"`
	URL      string `json:"url"`
	Datetime int64  `json:"datetime"`
	Category string `json:"category"`
	Related  string `json:"related"`
	Image    string `json:"image,omitempty"`
}

// raw is an upstream article with the optional SDK fields flattened.
type raw struct {
	id       int64
	headline string
	summary  string
	source   string
	url      string
	datetime int64
	category string
	related  string
	image    string
}

func fromSDK(n sdk.MarketNews) raw {
	return raw{
		id:       n.GetId(),
		headline: n.GetHeadline(),
		summary:  n.GetSummary(),
		source:   n.GetSource(),
		url:      n.GetUrl(),
		datetime: n.GetDatetime(),
		category: n.GetCategory(),
		related:  n.GetRelated(),
		image:    n.GetImage(),
	}
}

func (r raw) valid() bool {
	return strings.TrimSpace(r.headline) != "" &&
		strings.TrimSpace(r.summary) != "" &&
		strings.TrimSpace(r.url) != "" &&
		strings.TrimSpace(r.source) != "" &&
		r.datetime > 0
}

func (r raw) dedupeKey() string {
	return strconv.FormatInt(r.id, 10) + "-" + r.url + "-" + r.headline
}

func (r raw) companyArticle(symbol string) Article {
	return Article{
		ID:       r.id,
		Headline: strings.TrimSpace(r.headline),
		Summary:  truncate(strings.TrimSpace(r.summary), companySummaryLimit),
		Source:   strings.TrimSpace(r.source),
		URL:      strings.TrimSpace(r.url),
		Datetime: r.datetime,
		Category: "company",
		Related:  symbol,
		Image:    r.image,
	}
}

func (r raw) generalArticle() Article {
	category := r.category
	if category == "" {
		category = "general"
	}
	return Article{
		ID:       r.id,
		Headline: strings.TrimSpace(r.headline),
		Summary:  truncate(strings.TrimSpace(r.summary), generalSummaryLimit),
		Source:   strings.TrimSpace(r.source),
		URL:      strings.TrimSpace(r.url),
		Datetime: r.datetime,
		Category: category,
		Related:  r.related,
		Image:    r.image,
	}
}

// truncate cuts s to limit runes and marks the cut with "...".
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
