package results

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/httputil"
	"github.com/tidwall/gjson"
)

// FeedEntry is one draw outcome published by the result feed. Lotteries are
// identified by their display name.
type FeedEntry struct {
	LotteryName string
	Result      lottery.Result
}

// Feed pulls published results from the third-party feed.
type Feed struct {
	client *httputil.Client
	path   string
}

// NewFeed builds a feed reader fetching path through client.
func NewFeed(client *httputil.Client, path string) *Feed {
	if path == "" {
		path = "/"
	}
	return &Feed{client: client, path: path}
}

// Fetch downloads and parses the current result list.
func (f *Feed) Fetch(ctx context.Context) ([]FeedEntry, error) {
	body, err := f.client.Get(ctx, f.path)
	if err != nil {
		return nil, fmt.Errorf("fetch results feed: %w", err)
	}
	return ParseFeed(body)
}

// ParseFeed reads the feed document. The list may be the document itself or
// sit under "results" or "data". Seco prizes come either as a list of
// {numero, serie} objects or as an object keyed by prize label.
func ParseFeed(body []byte) ([]FeedEntry, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("results feed is not valid JSON")
	}
	doc := gjson.ParseBytes(body)
	list := doc
	if !doc.IsArray() {
		for _, key := range []string{"results", "data"} {
			if v := doc.Get(key); v.IsArray() {
				list = v
				break
			}
		}
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("results feed has no result list")
	}

	var entries []FeedEntry
	var problems []string
	for i, item := range list.Array() {
		entry, err := parseEntry(item)
		if err != nil {
			problems = append(problems, fmt.Sprintf("entry %d: %v", i, err))
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 && len(problems) > 0 {
		return nil, fmt.Errorf("results feed unusable: %s", strings.Join(problems, "; "))
	}
	return entries, nil
}

func parseEntry(item gjson.Result) (FeedEntry, error) {
	name := strings.TrimSpace(item.Get("nombre_loteria").String())
	if name == "" {
		return FeedEntry{}, fmt.Errorf("missing nombre_loteria")
	}
	date, err := time.Parse("2006-01-02", strings.TrimSpace(item.Get("fecha").String()))
	if err != nil {
		return FeedEntry{}, fmt.Errorf("invalid fecha %q", item.Get("fecha").String())
	}
	number := strings.TrimSpace(item.Get("numero").String())
	if !lottery.IsDigits(number) {
		return FeedEntry{}, fmt.Errorf("invalid numero %q", number)
	}

	res := lottery.Result{
		DrawDate: lottery.DateOf(date),
		Number:   number,
		Series:   strings.TrimSpace(item.Get("numero_serie").String()),
	}

	secos := item.Get("premios_secos")
	switch {
	case secos.IsArray():
		for _, s := range secos.Array() {
			if p, ok := secoFrom(s, s.Get("nombre").String()); ok {
				res.Secos = append(res.Secos, p)
			}
		}
	case secos.IsObject():
		secos.ForEach(func(label, s gjson.Result) bool {
			if p, ok := secoFrom(s, label.String()); ok {
				res.Secos = append(res.Secos, p)
			}
			return true
		})
	}
	return FeedEntry{LotteryName: name, Result: res}, nil
}

// secoFrom accepts {numero, serie} objects and bare numbers.
func secoFrom(v gjson.Result, label string) (lottery.SecoPrize, bool) {
	var p lottery.SecoPrize
	if v.IsObject() {
		p.Number = strings.TrimSpace(v.Get("numero").String())
		p.Series = strings.TrimSpace(v.Get("serie").String())
	} else {
		p.Number = strings.TrimSpace(v.String())
	}
	p.Label = strings.TrimSpace(label)
	return p, lottery.IsDigits(p.Number)
}
