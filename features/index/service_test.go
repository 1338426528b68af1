package index_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"podrag/features/episode"
	"podrag/features/index"
	"podrag/internal/vector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockRepo struct{ mock.Mock }

func (m *MockRepo) Create(ctx context.Context, ep *episode.Episode) error {
	return m.Called(ctx, ep).Error(0)
}

func (m *MockRepo) Get(ctx context.Context, id string) (*episode.Episode, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*episode.Episode), args.Error(1)
}

func (m *MockRepo) GetByDate(ctx context.Context, date time.Time) (*episode.Episode, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*episode.Episode), args.Error(1)
}

func (m *MockRepo) ListByStatus(ctx context.Context, status episode.Status) ([]episode.Episode, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]episode.Episode), args.Error(1)
}

func (m *MockRepo) ListByDateRange(ctx context.Context, start, end time.Time) ([]episode.Episode, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]episode.Episode), args.Error(1)
}

func (m *MockRepo) SetTranscript(ctx context.Context, id, transcript string) error {
	return m.Called(ctx, id, transcript).Error(0)
}

func (m *MockRepo) UpdateStatus(ctx context.Context, id string, status episode.Status) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockRepo) CountByStatus(ctx context.Context) (map[episode.Status]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[episode.Status]int), args.Error(1)
}

func (m *MockRepo) PublishedBounds(ctx context.Context) (time.Time, time.Time, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Get(1).(time.Time), args.Error(2)
}

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockStore struct{ mock.Mock }

func (m *MockStore) UpsertPassages(ctx context.Context, passages []vector.Passage) error {
	return m.Called(ctx, passages).Error(0)
}

func (m *MockStore) DeleteByEpisode(ctx context.Context, episodeID string) error {
	return m.Called(ctx, episodeID).Error(0)
}

func transcribedEpisode(id, transcript string) *episode.Episode {
	published, _ := time.Parse("2006-01-02", id)
	return &episode.Episode{
		ID:          id,
		Title:       "Episode " + id,
		Transcript:  transcript,
		Status:      episode.StatusTranscribed,
		PublishedAt: published,
	}
}

func TestIndexEpisode_UpsertsPassagesThenMarksIndexed(t *testing.T) {
	repo := new(MockRepo)
	emb := new(MockEmbedder)
	store := new(MockStore)

	ep := transcribedEpisode("2025-07-08", "some transcript text")
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1, 0.2}, nil)
	store.On("UpsertPassages", mock.Anything, mock.MatchedBy(func(ps []vector.Passage) bool {
		if len(ps) == 0 {
			return false
		}
		p := ps[0]
		return p.ID == vector.PassageID("2025-07-08", 0) &&
			p.EpisodeID == "2025-07-08" &&
			p.EpisodeDate == "2025-07-08" &&
			p.ChunkIndex == 0 &&
			p.Content != ""
	})).Return(nil)
	repo.On("UpdateStatus", mock.Anything, "2025-07-08", episode.StatusIndexed).Return(nil)

	svc := index.NewService(repo, emb, store, 512, 1)
	err := svc.IndexEpisode(context.Background(), ep)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestIndexEpisode_AlreadyIndexedIsNoOp(t *testing.T) {
	repo := new(MockRepo)
	emb := new(MockEmbedder)
	store := new(MockStore)

	ep := transcribedEpisode("2025-07-08", "text")
	ep.Status = episode.StatusIndexed

	svc := index.NewService(repo, emb, store, 512, 1)
	err := svc.IndexEpisode(context.Background(), ep)

	assert.NoError(t, err)
	emb.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "UpsertPassages", mock.Anything, mock.Anything)
}

func TestIndexEpisode_EmptyTranscriptRepairedToPending(t *testing.T) {
	repo := new(MockRepo)
	store := new(MockStore)

	ep := transcribedEpisode("2025-07-08", "")
	store.On("DeleteByEpisode", mock.Anything, "2025-07-08").Return(nil)
	repo.On("UpdateStatus", mock.Anything, "2025-07-08", episode.StatusPending).Return(nil)

	svc := index.NewService(repo, new(MockEmbedder), store, 512, 1)
	err := svc.IndexEpisode(context.Background(), ep)

	assert.ErrorIs(t, err, episode.ErrInvalidState)
	repo.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestIndexEpisode_UpsertFailureLeavesStatusTranscribed(t *testing.T) {
	repo := new(MockRepo)
	emb := new(MockEmbedder)
	store := new(MockStore)

	ep := transcribedEpisode("2025-07-08", "text to index")
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	store.On("UpsertPassages", mock.Anything, mock.Anything).Return(assert.AnError)

	svc := index.NewService(repo, emb, store, 512, 1)
	err := svc.IndexEpisode(context.Background(), ep)

	assert.ErrorIs(t, err, assert.AnError)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestIndexEpisode_LongTranscriptGetsStableIDsPerChunk(t *testing.T) {
	repo := new(MockRepo)
	emb := new(MockEmbedder)
	store := new(MockStore)

	// Several paragraphs, each far over the chunk budget, to force multiple chunks.
	paragraph := strings.Repeat("the hosts argue about frameworks. ", 20)
	ep := transcribedEpisode("2025-07-08", paragraph+"\n\n"+paragraph+"\n\n"+paragraph)

	emb.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.5}, nil)
	var runs [][]vector.Passage
	store.On("UpsertPassages", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		runs = append(runs, args.Get(1).([]vector.Passage))
	}).Return(nil)
	repo.On("UpdateStatus", mock.Anything, "2025-07-08", episode.StatusIndexed).Return(nil)

	svc := index.NewService(repo, emb, store, 64, 1)
	err := svc.IndexEpisode(context.Background(), ep)
	assert.NoError(t, err)

	// A second pass over the same transcript upserts the same object IDs,
	// so the index never grows past one passage per chunk.
	again := *ep
	err = svc.IndexEpisode(context.Background(), &again)
	assert.NoError(t, err)

	assert.Len(t, runs, 2)
	captured := runs[0]
	assert.Greater(t, len(captured), 1)
	for i, p := range captured {
		assert.Equal(t, i, p.ChunkIndex)
		assert.Equal(t, vector.PassageID("2025-07-08", i), p.ID)
	}

	assert.Equal(t, len(runs[0]), len(runs[1]))
	for i := range runs[0] {
		assert.Equal(t, runs[0][i].ID, runs[1][i].ID)
	}
}

func TestReconcile_OneFailureDoesNotAbortSweep(t *testing.T) {
	repo := new(MockRepo)
	emb := new(MockEmbedder)
	store := new(MockStore)

	bad := *transcribedEpisode("2025-07-01", "")
	good := *transcribedEpisode("2025-07-08", "fine transcript")

	repo.On("ListByStatus", mock.Anything, episode.StatusTranscribed).
		Return([]episode.Episode{bad, good}, nil)
	store.On("DeleteByEpisode", mock.Anything, "2025-07-01").Return(nil)
	repo.On("UpdateStatus", mock.Anything, "2025-07-01", episode.StatusPending).Return(nil)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	store.On("UpsertPassages", mock.Anything, mock.Anything).Return(nil)
	repo.On("UpdateStatus", mock.Anything, "2025-07-08", episode.StatusIndexed).Return(nil)

	svc := index.NewService(repo, emb, store, 512, 1)
	err := svc.Reconcile(context.Background())

	assert.NoError(t, err)
	repo.AssertCalled(t, "UpdateStatus", mock.Anything, "2025-07-08", episode.StatusIndexed)
}

func TestIndexByID_LoadsEpisodeFirst(t *testing.T) {
	repo := new(MockRepo)
	repo.On("Get", mock.Anything, "2025-07-08").Return(nil, episode.ErrNotFound)

	svc := index.NewService(repo, new(MockEmbedder), new(MockStore), 512, 1)
	err := svc.IndexByID(context.Background(), "2025-07-08")

	assert.ErrorIs(t, err, episode.ErrNotFound)
}
