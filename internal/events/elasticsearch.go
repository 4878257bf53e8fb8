package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
)

// Elasticsearch counts events from ES indices. Table names map to index
// names by swapping the schema separator, e.g. marketing.promotions serves
// from the marketing-promotions index.
type Elasticsearch struct {
	client      *elasticsearch.Client
	periodField string
}

func NewElasticsearch(addresses []string, username, password, periodField string) (*Elasticsearch, error) {
	cfg := elasticsearch.Config{Addresses: addresses}
	if username != "" {
		cfg.Username = username
		cfg.Password = password
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch.NewClient: %w", err)
	}
	if periodField == "" {
		periodField = "period"
	}
	return &Elasticsearch{client: client, periodField: periodField}, nil
}

func (e *Elasticsearch) Count(ctx context.Context, table, period string) (int64, error) {
	index := strings.ReplaceAll(table, ".", "-")

	body, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"term": map[string]any{e.periodField: period},
		},
	})
	if err != nil {
		return 0, err
	}

	res, err := e.client.Count(
		e.client.Count.WithContext(ctx),
		e.client.Count.WithIndex(index),
		e.client.Count.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", index, err)
	}
	defer res.Body.Close()

	var decoded struct {
		Count int64 `json:"count"`
		Error any   `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	if res.IsError() {
		return 0, fmt.Errorf("count %s failed [%s]: %v", index, res.Status(), decoded.Error)
	}
	return decoded.Count, nil
}
