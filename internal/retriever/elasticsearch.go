package retriever

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// indexChunks pushes every chunk into the configured index. Indexing is
// idempotent: document ids are derived from source and position.
func (r *Retriever) indexChunks(ctx context.Context) error {
	es := r.es.Client

	for i, c := range r.chunks {
		body, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode chunk: %w", err)
		}

		res, err := es.Index(
			r.cfg.IndexName,
			bytes.NewReader(body),
			es.Index.WithDocumentID(fmt.Sprintf("%s-%d", c.Source, i)),
			es.Index.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("index chunk: %w", err)
		}
		res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("index chunk: %s", res.Status())
		}
	}

	// Make the chunks searchable immediately.
	res, err := es.Indices.Refresh(
		es.Indices.Refresh.WithIndex(r.cfg.IndexName),
		es.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("refresh index: %w", err)
	}
	res.Body.Close()

	r.logger.Info("Knowledge chunks indexed", map[string]interface{}{
		"index":  r.cfg.IndexName,
		"chunks": len(r.chunks),
	})
	return nil
}

func (r *Retriever) searchElasticsearch(ctx context.Context, query string) (string, error) {
	es := r.es.Client

	body, err := json.Marshal(map[string]interface{}{
		"size": r.cfg.TopK,
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"content": map[string]interface{}{"query": query},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode search: %w", err)
	}

	res, err := es.Search(
		es.Search.WithContext(ctx),
		es.Search.WithIndex(r.cfg.IndexName),
		es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return "", fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return "", fmt.Errorf("search: %s: %s", res.Status(), string(raw))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source Chunk `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode search response: %w", err)
	}

	parts := make([]string, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		parts = append(parts, hit.Source.Content)
	}
	r.logger.Debug("Elasticsearch retrieval", map[string]interface{}{"chunks": len(parts)})
	return strings.Join(parts, "\n\n"), nil
}
