package vector_test

import (
	"context"
	"testing"

	"podrag/internal/vector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/weaviate/weaviate/entities/models"
)

type MockSchemaClient struct{ mock.Mock }

func (m *MockSchemaClient) ClassExists(ctx context.Context, className string) (bool, error) {
	args := m.Called(ctx, className)
	return args.Bool(0), args.Error(1)
}

func (m *MockSchemaClient) CreateClass(ctx context.Context, class *models.Class) error {
	return m.Called(ctx, class).Error(0)
}

func (m *MockSchemaClient) GetClass(ctx context.Context, className string) (*models.Class, error) {
	args := m.Called(ctx, className)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Class), args.Error(1)
}

func (m *MockSchemaClient) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return m.Called(ctx, className, property).Error(0)
}

func TestPassageID_Deterministic(t *testing.T) {
	a := vector.PassageID("2025-07-08", 0)
	b := vector.PassageID("2025-07-08", 0)
	assert.Equal(t, a, b)

	// Different chunk, different episode, different IDs.
	assert.NotEqual(t, a, vector.PassageID("2025-07-08", 1))
	assert.NotEqual(t, a, vector.PassageID("2025-07-15", 0))

	// Valid UUID shape.
	assert.Len(t, a, 36)
}

func TestEnsureSchema_CreatesClassWhenMissing(t *testing.T) {
	client := new(MockSchemaClient)
	client.On("ClassExists", mock.Anything, vector.ClassName).Return(false, nil)
	client.On("CreateClass", mock.Anything, mock.MatchedBy(func(c *models.Class) bool {
		if c.Class != vector.ClassName || c.Vectorizer != "none" {
			return false
		}
		names := make(map[string]bool)
		for _, p := range c.Properties {
			names[p.Name] = true
		}
		return names["content"] && names["episodeId"] && names["episodeDate"] &&
			names["title"] && names["chunkIndex"]
	})).Return(nil)

	err := vector.EnsureSchema(context.Background(), client)

	assert.NoError(t, err)
	client.AssertExpectations(t)
}

func TestEnsureSchema_AddsMissingProperties(t *testing.T) {
	client := new(MockSchemaClient)
	client.On("ClassExists", mock.Anything, vector.ClassName).Return(true, nil)
	client.On("GetClass", mock.Anything, vector.ClassName).Return(&models.Class{
		Class: vector.ClassName,
		Properties: []*models.Property{
			{Name: "content"},
			{Name: "episodeId"},
		},
	}, nil)
	client.On("AddProperty", mock.Anything, vector.ClassName, mock.Anything).Return(nil)

	err := vector.EnsureSchema(context.Background(), client)

	assert.NoError(t, err)
	client.AssertNumberOfCalls(t, "AddProperty", 3)
	client.AssertNotCalled(t, "CreateClass", mock.Anything, mock.Anything)
}

func TestEnsureSchema_CompleteClassUntouched(t *testing.T) {
	client := new(MockSchemaClient)
	client.On("ClassExists", mock.Anything, vector.ClassName).Return(true, nil)
	client.On("GetClass", mock.Anything, vector.ClassName).Return(&models.Class{
		Class: vector.ClassName,
		Properties: []*models.Property{
			{Name: "content"}, {Name: "episodeId"}, {Name: "episodeDate"},
			{Name: "title"}, {Name: "chunkIndex"},
		},
	}, nil)

	err := vector.EnsureSchema(context.Background(), client)

	assert.NoError(t, err)
	client.AssertNotCalled(t, "AddProperty", mock.Anything, mock.Anything, mock.Anything)
}
