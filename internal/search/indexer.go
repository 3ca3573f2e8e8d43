package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"talentbridge/marketplace-backend/internal/projects"
)

const defaultIndex = "projects"

// ProjectDoc is the browse-index document for an available project.
type ProjectDoc struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id"`
	Description  string    `json:"description"`
	Budget       float64   `json:"budget"`
	Deliverables []string  `json:"deliverables"`
	IndexedAt    time.Time `json:"indexed_at"`
}

// Indexer keeps the Elasticsearch browse index in sync with project
// availability. Index failures degrade search freshness, never correctness;
// the repository remains the source of truth.
type Indexer struct {
	client *elasticsearch.Client
	index  string
	logger *zap.Logger
}

func NewIndexer(client *elasticsearch.Client, logger *zap.Logger) *Indexer {
	return &Indexer{client: client, index: defaultIndex, logger: logger}
}

// IndexProject writes the project's browse document.
func (i *Indexer) IndexProject(ctx context.Context, project *projects.Project) error {
	doc := ProjectDoc{
		ID:          project.ID.String(),
		ClientID:    project.ClientID.String(),
		Description: project.Description,
		Budget:      project.Budget,
		IndexedAt:   time.Now(),
	}
	for _, d := range project.Deliverables {
		doc.Deliverables = append(doc.Deliverables, d.Name)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode project doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("failed to index project: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to index project: %s", res.Status())
	}
	return nil
}

// RemoveProject deletes the project's browse document. A missing document is
// not an error; the project may never have been available.
func (i *Indexer) RemoveProject(ctx context.Context, projectID uuid.UUID) error {
	req := esapi.DeleteRequest{
		Index:      i.index,
		DocumentID: projectID.String(),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("failed to remove project from index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("failed to remove project from index: %s", res.Status())
	}
	return nil
}

// Search runs a free-text query over description and deliverable names.
func (i *Indexer) Search(ctx context.Context, query string, limit int) ([]ProjectDoc, error) {
	if limit <= 0 {
		limit = 20
	}

	var buf bytes.Buffer
	body := map[string]any{
		"size": limit,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": []string{"description", "deliverables"},
			},
		},
	}
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.index),
		i.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source ProjectDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	docs := make([]ProjectDoc, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		docs = append(docs, hit.Source)
	}
	return docs, nil
}
