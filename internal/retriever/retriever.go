// Package retriever supplies knowledge-base context for conversational
// queries. Documents are chunked at load time; retrieval uses
// Elasticsearch when configured and keyword overlap otherwise.
package retriever

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"finchat-assistant/internal/common/config"
	"finchat-assistant/internal/common/database"
	"finchat-assistant/internal/common/logger"
)

// Chunk is one indexed slice of a source document.
type Chunk struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

type Retriever struct {
	cfg    config.KnowledgeConfig
	es     *database.ElasticsearchClient
	chunks []Chunk
	logger logger.Logger
}

// New loads and chunks the knowledge documents. When an Elasticsearch
// client is provided the chunks are also indexed there; the in-memory
// chunks remain the fallback path.
func New(ctx context.Context, cfg config.KnowledgeConfig, es *database.ElasticsearchClient, log logger.Logger) (*Retriever, error) {
	r := &Retriever{cfg: cfg, es: es, logger: log}

	docs := r.loadDocuments()
	for source, text := range docs {
		for _, piece := range splitText(text, cfg.ChunkSize, cfg.ChunkOverlap) {
			r.chunks = append(r.chunks, Chunk{Source: source, Content: piece})
		}
	}
	log.Info("Knowledge base loaded", map[string]interface{}{
		"documents": len(docs),
		"chunks":    len(r.chunks),
	})

	if r.es != nil {
		if err := r.indexChunks(ctx); err != nil {
			log.Warn("Elasticsearch indexing failed, keyword search only", map[string]interface{}{
				"error": err.Error(),
			})
			r.es = nil
		}
	}
	return r, nil
}

// loadDocuments reads every .txt file under the docs dir, keyed by
// filename. An empty or missing dir yields the built-in knowledge.
func (r *Retriever) loadDocuments() map[string]string {
	docs := make(map[string]string)

	entries, err := os.ReadDir(r.cfg.DocsDir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
				continue
			}
			raw, err := os.ReadFile(filepath.Join(r.cfg.DocsDir, entry.Name()))
			if err != nil {
				r.logger.Error("Failed to load knowledge document", map[string]interface{}{
					"file":  entry.Name(),
					"error": err.Error(),
				})
				continue
			}
			docs[entry.Name()] = string(raw)
		}
	}

	if len(docs) == 0 {
		r.logger.Info("No knowledge documents found, using built-in knowledge", nil)
		docs["default_knowledge"] = defaultKnowledge
	}
	return docs
}

// GetContext returns up to TopK relevant chunks joined by blank lines,
// or an empty string when nothing matches. Retrieval never fails the
// caller; backend errors degrade to keyword search.
func (r *Retriever) GetContext(ctx context.Context, query string) string {
	if r.es != nil {
		result, err := r.searchElasticsearch(ctx, query)
		if err == nil {
			return result
		}
		r.logger.Error("Elasticsearch retrieval failed, using keyword search", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return r.keywordSearch(query)
}

var wordRe = regexp.MustCompile(`\w+`)

func words(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		set[w] = struct{}{}
	}
	return set
}

// keywordSearch scores chunks by distinct word overlap with the query.
func (r *Retriever) keywordSearch(query string) string {
	queryWords := words(query)
	if len(queryWords) == 0 {
		return ""
	}

	type scored struct {
		chunk Chunk
		score int
	}
	var matches []scored
	for _, c := range r.chunks {
		overlap := 0
		for w := range words(c.Content) {
			if _, ok := queryWords[w]; ok {
				overlap++
			}
		}
		if overlap > 0 {
			matches = append(matches, scored{chunk: c, score: overlap})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if len(matches) > r.cfg.TopK {
		matches = matches[:r.cfg.TopK]
	}

	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = m.chunk.Content
	}
	r.logger.Debug("Keyword retrieval", map[string]interface{}{"chunks": len(parts)})
	return strings.Join(parts, "\n\n")
}

// splitText cuts text into rune windows of the given size with the
// given overlap between consecutive windows.
func splitText(text string, size, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if size <= 0 || len(runes) <= size {
		return []string{string(runes)}
	}

	step := size - overlap
	if step <= 0 {
		step = size
	}

	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			out = append(out, piece)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
