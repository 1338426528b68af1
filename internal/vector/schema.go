package vector

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate/entities/models"
)

// ClassName is the Weaviate class holding transcript passages.
const ClassName = "PodcastPassage"

// passageNamespace seeds deterministic passage IDs. Re-embedding the same
// episode yields identical IDs, so upserts overwrite instead of duplicating.
var passageNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("podrag/passage"))

// PassageID derives the stable vector-store identifier for the nth chunk of
// an episode's transcript.
func PassageID(episodeID string, chunkIndex int) string {
	name := episodeID + "/" + strconv.Itoa(chunkIndex)
	return uuid.NewSHA1(passageNamespace, []byte(name)).String()
}

// Passage is the unit of embedding and retrieval: one semantically bounded
// slice of a transcript plus the metadata that travels with it.
type Passage struct {
	ID          string
	EpisodeID   string
	EpisodeDate string
	Title       string
	ChunkIndex  int
	Content     string
	Vector      []float32
}

// SchemaClient defines the interface for Weaviate schema operations.
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

// EnsureSchema checks that the passage class exists with all required
// properties and creates whatever is missing.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ClassName)
	if err != nil {
		return err
	}

	properties := []*models.Property{
		{
			Name:     "content",
			DataType: []string{"text"},
		},
		{
			Name:     "episodeId",
			DataType: []string{"string"}, // date-derived key, exact match
		},
		{
			Name:     "episodeDate",
			DataType: []string{"string"},
		},
		{
			Name:     "title",
			DataType: []string{"text"},
		},
		{
			Name:     "chunkIndex",
			DataType: []string{"int"},
		},
	}

	if !exists {
		class := &models.Class{
			Class:       ClassName,
			Description: "A passage of a podcast episode transcript",
			Vectorizer:  "none",
			Properties:  properties,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, ClassName)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, ClassName, p); err != nil {
				return err
			}
		}
	}

	return nil
}
