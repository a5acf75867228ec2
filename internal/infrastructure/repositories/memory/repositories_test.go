package memory

import (
	"context"
	"testing"

	"avatarcast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_AssignsIDsAndCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewProductRepository()

	a := &domain.Product{Name: "Kettle"}
	b := &domain.Product{Name: "Lamp"}
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
	assert.False(t, a.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Kettle", again.Name)

	_, err = repo.GetByID(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLiveSessionRepository_StatusTimestamps(t *testing.T) {
	ctx := context.Background()
	repo := NewLiveSessionRepository()

	s := &domain.LiveSession{Title: "Launch"}
	require.NoError(t, repo.Create(ctx, s))
	assert.Equal(t, domain.LiveSessionPreparing, s.Status)

	require.NoError(t, repo.UpdateStatus(ctx, s.ID, domain.LiveSessionLive))
	require.NoError(t, repo.UpdateStatus(ctx, s.ID, domain.LiveSessionCompleted))

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LiveSessionCompleted, got.Status)
	assert.NotNil(t, got.StartTime)
	assert.NotNil(t, got.EndTime)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, 42, domain.LiveSessionLive), domain.ErrNotFound)
}

func TestStreamProductRepository_ListOrdersByPosition(t *testing.T) {
	ctx := context.Background()
	repo := NewStreamProductRepository()

	require.NoError(t, repo.Create(ctx, &domain.StreamProduct{SessionID: 1, ProductID: 10, OrderInStream: 2}))
	require.NoError(t, repo.Create(ctx, &domain.StreamProduct{SessionID: 1, ProductID: 11, OrderInStream: 1}))
	require.NoError(t, repo.Create(ctx, &domain.StreamProduct{SessionID: 2, ProductID: 12}))

	list, err := repo.ListBySession(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(11), list[0].ProductID)

	list[0].AudioPath = "outputs/a.wav"
	require.NoError(t, repo.Update(ctx, list[0]))
	got, err := repo.GetByID(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "outputs/a.wav", got.AudioPath)

	assert.ErrorIs(t, repo.Update(ctx, &domain.StreamProduct{ID: 77}), domain.ErrNotFound)
}

func TestCommentRepository_PagingAndAnswer(t *testing.T) {
	ctx := context.Background()
	repo := NewCommentRepository()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &domain.Comment{SessionID: 3, Message: "m"}))
	}
	require.NoError(t, repo.Create(ctx, &domain.Comment{SessionID: 4, Message: "other"}))

	page, err := repo.ListBySession(ctx, 3, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].ID)

	tail, err := repo.ListBySession(ctx, 3, 4, 10)
	require.NoError(t, err)
	assert.Len(t, tail, 1)

	empty, err := repo.ListBySession(ctx, 3, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, repo.MarkAnswered(ctx, 1, "outputs/answers/1.wav"))
	got, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.Answered)
	assert.Equal(t, "outputs/answers/1.wav", got.AnswerVideoPath)
}

func TestAvatarRepository_MarkPrepared(t *testing.T) {
	ctx := context.Background()
	repos := New()
	a := &domain.Avatar{Name: "Mai", VideoPath: "avatars/mai.mp4"}
	require.NoError(t, repos.Avatars.Create(ctx, a))
	require.NoError(t, repos.Avatars.MarkPrepared(ctx, a.ID, true))

	got, err := repos.Avatars.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPrepared)
}
