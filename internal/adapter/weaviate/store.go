package weaviate

import (
	"context"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"podrag/internal/retrieval"
	"podrag/internal/vector"
)

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// UpsertPassages writes passages in one batch. Object IDs are the
// deterministic passage IDs, so a re-run overwrites prior content for the
// same episode instead of duplicating it.
func (s *Store) UpsertPassages(ctx context.Context, passages []vector.Passage) error {
	if len(passages) == 0 {
		return nil
	}

	objects := make([]*models.Object, 0, len(passages))
	for _, p := range passages {
		objects = append(objects, &models.Object{
			Class: vector.ClassName,
			ID:    strfmt.UUID(p.ID),
			Properties: map[string]interface{}{
				"content":     p.Content,
				"episodeId":   p.EpisodeID,
				"episodeDate": p.EpisodeDate,
				"title":       p.Title,
				"chunkIndex":  p.ChunkIndex,
			},
			Vector: p.Vector,
		})
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return err
	}

	for _, obj := range resp {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch upsert error for %s: %s", obj.ID, obj.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// Search returns the passages most similar to the query vector.
func (s *Store) Search(ctx context.Context, queryVector []float32, limit int) ([]retrieval.SearchResult, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(queryVector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "episodeId"},
		{Name: "episodeDate"},
		{Name: "title"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var results []retrieval.SearchResult
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if rows, ok := data[vector.ClassName].([]interface{}); ok {
			for _, row := range rows {
				props, ok := row.(map[string]interface{})
				if !ok {
					continue
				}

				result := retrieval.SearchResult{}
				if content, ok := props["content"].(string); ok {
					result.Content = content
				}
				if id, ok := props["episodeId"].(string); ok {
					result.EpisodeID = id
				}
				if date, ok := props["episodeDate"].(string); ok {
					result.EpisodeDate = date
				}
				if title, ok := props["title"].(string); ok {
					result.Title = title
				}

				// Weaviate reports cosine distance; similarity is 1 - distance.
				if additional, ok := props["_additional"].(map[string]interface{}); ok {
					if distance, ok := additional["distance"].(float64); ok {
						result.Score = float32(1 - distance)
					}
				}

				results = append(results, result)
			}
		}
	}

	return results, nil
}

// DeleteByEpisode removes all passages of one episode.
func (s *Store) DeleteByEpisode(ctx context.Context, episodeID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"episodeId"}).
			WithOperator(filters.Equal).
			WithValueString(episodeID)).
		Do(ctx)
	return err
}

// CountPassages returns the total number of stored passages.
func (s *Store) CountPassages(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if data, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if rows, ok := data[vector.ClassName].([]interface{}); ok && len(rows) > 0 {
			if props, ok := rows[0].(map[string]interface{}); ok {
				if meta, ok := props["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}
