package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zanmi-app/zanmi-go/internal/core/domain"
)

func TestFileRepository_Pools(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewFileRepository(t.TempDir(), func() time.Time { return now })
	require.NoError(t, err)
	ctx := context.Background()

	// Never written: empty list, zero timestamp, no error.
	pools, err := repo.GetPools(ctx)
	require.NoError(t, err)
	assert.Empty(t, pools)
	at, err := repo.PoolsCachedAt(ctx)
	require.NoError(t, err)
	assert.True(t, at.IsZero())

	want := []domain.Pool{{ID: "p1", Name: "Sol Lakay", ContributionAmount: 5000}}
	require.NoError(t, repo.SavePools(ctx, want))

	pools, err = repo.GetPools(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, pools)
	at, err = repo.PoolsCachedAt(ctx)
	require.NoError(t, err)
	assert.True(t, at.Equal(now))
}

func TestFileRepository_EnrollmentScopes(t *testing.T) {
	repo, err := NewFileRepository(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	p1 := []domain.Enrollment{{ID: "E1", PoolID: "p1"}}
	p2 := []domain.Enrollment{{ID: "E2", PoolID: "p2"}}
	require.NoError(t, repo.SaveEnrollments(ctx, "p1", p1))
	require.NoError(t, repo.SaveEnrollments(ctx, "p2", p2))
	require.NoError(t, repo.SaveEnrollments(ctx, "", append(p1, p2...)))

	got, err := repo.GetEnrollments(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, p1, got)
	got, err = repo.GetEnrollments(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, p2, got)
	got, err = repo.GetEnrollments(ctx, "")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFileRepository_HostileScopeID(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewFileRepository(dir, nil)
	require.NoError(t, err)
	ctx := context.Background()

	// A scope with path separators must not escape the repository dir.
	require.NoError(t, repo.SaveEnrollments(ctx, "../../etc/passwd", []domain.Enrollment{{ID: "E1"}}))
	got, err := repo.GetEnrollments(ctx, "../../etc/passwd")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFileRepository_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repo, err := NewFileRepository(dir, nil)
	require.NoError(t, err)
	require.NoError(t, repo.SavePools(ctx, []domain.Pool{{ID: "p1"}}))

	reopened, err := NewFileRepository(dir, nil)
	require.NoError(t, err)
	pools, err := reopened.GetPools(ctx)
	require.NoError(t, err)
	assert.Len(t, pools, 1)
	at, err := reopened.PoolsCachedAt(ctx)
	require.NoError(t, err)
	assert.False(t, at.IsZero())
}
