// Copyright 2026 Stageflow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package knowledge provides an embedded vector store scenarios can query
// through the knowledge_search function during tool-calling conversations.
//
// Backed by chromem-go: pure Go, in memory, with optional gzip-compressed
// file persistence. Single-process and memory-bound, which is plenty for
// scenario-scoped reference material.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	chromem "github.com/philippgille/chromem-go"

	"github.com/stageflow-ai/stageflow/pkg/functions"
)

// SearchFunctionName is the function name scenarios use to query the store.
const SearchFunctionName = "knowledge_search"

const defaultTopK = 5

// Config configures the knowledge store.
type Config struct {
	// Collection names the chromem collection. Required.
	Collection string

	// PersistPath enables file persistence when non-empty.
	PersistPath string

	// Compress gzips the persisted database.
	Compress bool

	// EmbeddingFunc computes embeddings for documents and queries.
	// Defaults to chromem's OpenAI embedding function using OPENAI_API_KEY.
	EmbeddingFunc chromem.EmbeddingFunc
}

// Result is one search hit.
type Result struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Store is an embedded vector store over one chromem collection.
type Store struct {
	db          *chromem.DB
	collection  *chromem.Collection
	persistPath string
}

// NewStore opens or creates the configured collection.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("knowledge store requires a collection name")
	}

	embed := cfg.EmbeddingFunc
	if embed == nil {
		embed = chromem.NewEmbeddingFuncDefault()
	}

	db := chromem.NewDB()
	persistPath := ""
	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}

		persistPath = filepath.Join(cfg.PersistPath, "knowledge.gob")
		if cfg.Compress {
			persistPath += ".gz"
		}

		if _, statErr := os.Stat(persistPath); statErr == nil {
			if err := db.ImportFromFile(persistPath, ""); err != nil {
				slog.Warn("Failed to load knowledge database, starting empty", "path", persistPath, "error", err)
			} else {
				slog.Info("Loaded knowledge database", "path", persistPath)
			}
		}
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %q: %w", cfg.Collection, err)
	}

	return &Store{
		db:          db,
		collection:  collection,
		persistPath: persistPath,
	}, nil
}

// AddDocument adds or replaces one document.
func (s *Store) AddDocument(ctx context.Context, id, content string, metadata map[string]string) error {
	if id == "" || content == "" {
		return fmt.Errorf("document requires an id and content")
	}

	doc := chromem.Document{
		ID:       id,
		Content:  content,
		Metadata: metadata,
	}
	if err := s.collection.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add document %s: %w", id, err)
	}

	s.persist()
	return nil
}

// Search returns the topK most similar documents to the query text.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if query == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	// chromem caps the result count at the collection size.
	if count := s.collection.Count(); topK > count {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}

	hits, err := s.collection.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			ID:       hit.ID,
			Content:  hit.Content,
			Score:    hit.Similarity,
			Metadata: hit.Metadata,
		})
	}
	return results, nil
}

func (s *Store) persist() {
	if s.persistPath == "" {
		return
	}
	if err := s.db.ExportToFile(s.persistPath, filepath.Ext(s.persistPath) == ".gz", ""); err != nil {
		slog.Warn("Failed to persist knowledge database", "path", s.persistPath, "error", err)
	}
}

type searchArgs struct {
	Query string `json:"query"`
	TopK  int    `json:"topK"`
}

// RegisterSearchFunction exposes the store to the tool-calling loop as
// knowledge_search.
func (s *Store) RegisterSearchFunction(reg *functions.Registry) error {
	return reg.Register(SearchFunctionName, func(ctx context.Context, args json.RawMessage) (string, error) {
		var parsed searchArgs
		if err := json.Unmarshal(args, &parsed); err != nil {
			return "", fmt.Errorf("invalid %s arguments: %w", SearchFunctionName, err)
		}

		results, err := s.Search(ctx, parsed.Query, parsed.TopK)
		if err != nil {
			return "", err
		}
		if results == nil {
			results = []Result{}
		}

		data, err := json.Marshal(results)
		if err != nil {
			return "", fmt.Errorf("failed to serialize search results: %w", err)
		}
		return string(data), nil
	})
}

// SearchFunctionSchema is the JSON schema of the knowledge_search arguments,
// suitable for a scenario function declaration.
const SearchFunctionSchema = `{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "Natural-language search query"},
    "topK": {"type": "integer", "description": "Maximum number of results"}
  },
  "required": ["query"],
  "additionalProperties": false
}`
