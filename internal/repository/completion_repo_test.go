package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/certify-go-api/internal/models"
)

func newCompletionTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:comprepo_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SubsectionCompletion{}))

	return db
}

func markDone(userID, subsectionID, courseID uint) *models.SubsectionCompletion {
	now := time.Now()
	return &models.SubsectionCompletion{
		UserID:       userID,
		SubsectionID: subsectionID,
		CourseID:     courseID,
		CompletedAt:  &now,
	}
}

func TestCompletionRepositoryUpsertIsIdempotent(t *testing.T) {
	db := newCompletionTestDB(t)
	repo := NewCompletionRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, markDone(1, 10, 1)))
	require.NoError(t, repo.Upsert(ctx, markDone(1, 10, 1)))

	var count int64
	require.NoError(t, db.Model(&models.SubsectionCompletion{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	completions, err := repo.ListByUserAndCourse(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, completions, 1)
	require.NotNil(t, completions[0].CompletedAt)
}

func TestCompletionRepositoryScopesToUserAndCourse(t *testing.T) {
	repo := NewCompletionRepository(newCompletionTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, markDone(1, 10, 1)))
	require.NoError(t, repo.Upsert(ctx, markDone(1, 20, 2)))
	require.NoError(t, repo.Upsert(ctx, markDone(2, 10, 1)))

	completions, err := repo.ListByUserAndCourse(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, completions, 1)
	require.Equal(t, uint(10), completions[0].SubsectionID)
}

func TestCompletionRepositoryListUsersWithFullCompletion(t *testing.T) {
	repo := NewCompletionRepository(newCompletionTestDB(t))
	ctx := context.Background()

	// User 1 finished both subsections, user 2 only one.
	require.NoError(t, repo.Upsert(ctx, markDone(1, 10, 1)))
	require.NoError(t, repo.Upsert(ctx, markDone(1, 11, 1)))
	require.NoError(t, repo.Upsert(ctx, markDone(2, 10, 1)))

	userIDs, err := repo.ListUsersWithFullCompletion(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, []uint{1}, userIDs)

	everyone, err := repo.ListUsersWithFullCompletion(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, everyone, 2)
}
