package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"riskscope/internal/model"
)

// IndexSink appends risk events to an Elasticsearch index for offline
// analysis. Documents are keyed by event ID, so replays overwrite rather
// than duplicate.
type IndexSink struct {
	client *elasticsearch.Client
	index  string
}

// NewIndexSink connects to Elasticsearch.
func NewIndexSink(url, index string) (*IndexSink, error) {
	if url == "" {
		return nil, fmt.Errorf("elasticsearch url is required")
	}
	if index == "" {
		return nil, fmt.Errorf("elasticsearch index is required")
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{url}})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return &IndexSink{client: client, index: index}, nil
}

func (s *IndexSink) Name() string { return "index" }

// Handle indexes the event document.
func (s *IndexSink) Handle(ctx context.Context, ev model.RiskEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal risk event: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: ev.ID,
		Body:       bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("index risk event: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.IsError() {
		return fmt.Errorf("index risk event: %s", resp.Status())
	}
	return nil
}
