package store_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeci/forgeci/pkg/config"
	"github.com/forgeci/forgeci/pkg/store"
)

func setupTestStore(t *testing.T) store.Store {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := store.NewStore(log, &config.DatabaseConfig{
		Driver: config.DriverSQLite,
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	})

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		_ = s.Stop()
	})

	return s
}

func TestGetOrCreateProject_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first, err := s.GetOrCreateProject(
		ctx, "github.com", "packit", "hello-world",
		"https://github.com/packit/hello-world",
	)
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	second, err := s.GetOrCreateProject(
		ctx, "github.com", "packit", "hello-world",
		"https://github.com/packit/hello-world",
	)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := s.GetOrCreateProject(
		ctx, "gitlab.com", "packit", "hello-world",
		"https://gitlab.com/packit/hello-world",
	)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestGetOrCreateProject_Validation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.GetOrCreateProject(ctx, "", "packit", "hello-world", "")
	require.Error(t, err)

	var verr *store.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "forge_host", verr.Field)
}

func TestGetOrCreatePullRequest(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	pr, err := s.GetOrCreatePullRequest(
		ctx, 342, "github.com", "packit", "hello-world",
		"https://github.com/packit/hello-world",
	)
	require.NoError(t, err)
	require.NotZero(t, pr.ID)
	assert.Equal(t, 342, pr.Number)

	again, err := s.GetOrCreatePullRequest(
		ctx, 342, "github.com", "packit", "hello-world",
		"https://github.com/packit/hello-world",
	)
	require.NoError(t, err)
	assert.Equal(t, pr.ID, again.ID)
	assert.Equal(t, pr.ProjectID, again.ProjectID)

	// Same number in a different repo is a different record.
	other, err := s.GetOrCreatePullRequest(
		ctx, 342, "github.com", "packit", "ogr",
		"https://github.com/packit/ogr",
	)
	require.NoError(t, err)
	assert.NotEqual(t, pr.ID, other.ID)

	_, err = s.GetOrCreatePullRequest(
		ctx, 0, "github.com", "packit", "hello-world", "",
	)
	var verr *store.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "pr_number", verr.Field)
}

func TestGetOrCreateBranch(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	branch, err := s.GetOrCreateBranch(
		ctx, "main", "github.com", "packit", "hello-world",
		"https://github.com/packit/hello-world",
	)
	require.NoError(t, err)
	require.NotZero(t, branch.ID)

	again, err := s.GetOrCreateBranch(
		ctx, "main", "github.com", "packit", "hello-world",
		"https://github.com/packit/hello-world",
	)
	require.NoError(t, err)
	assert.Equal(t, branch.ID, again.ID)

	_, err = s.GetOrCreateBranch(
		ctx, "  ", "github.com", "packit", "hello-world", "",
	)
	var verr *store.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "branch_name", verr.Field)
}

func TestGetOrCreateRelease(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	release, err := s.GetOrCreateRelease(
		ctx, "v1.0.2", "80201a74d96c", "github.com", "packit", "hello-world",
		"https://github.com/packit/hello-world",
	)
	require.NoError(t, err)
	require.NotZero(t, release.ID)
	assert.Equal(t, "80201a74d96c", release.CommitHash)

	again, err := s.GetOrCreateRelease(
		ctx, "v1.0.2", "80201a74d96c", "github.com", "packit", "hello-world",
		"https://github.com/packit/hello-world",
	)
	require.NoError(t, err)
	assert.Equal(t, release.ID, again.ID)
}

func TestGetOrCreateTrigger_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	pr, err := s.GetOrCreatePullRequest(
		ctx, 342, "github.com", "packit", "hello-world", "",
	)
	require.NoError(t, err)

	first, err := s.GetOrCreateTrigger(ctx, store.TriggerPullRequest, pr.ID)
	require.NoError(t, err)

	second, err := s.GetOrCreateTrigger(ctx, store.TriggerPullRequest, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// Same subject id under a different kind is a distinct trigger.
	branchTrigger, err := s.GetOrCreateTrigger(
		ctx, store.TriggerBranchPush, pr.ID,
	)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, branchTrigger.ID)

	_, err = s.GetOrCreateTrigger(ctx, store.TriggerKind("bogus"), pr.ID)
	var verr *store.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestGetOrCreateTrigger_Converges(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	branch, err := s.GetOrCreateBranch(
		ctx, "main", "github.com", "packit", "hello-world", "",
	)
	require.NoError(t, err)

	// Repeated identical calls, as retried webhook deliveries produce,
	// must all converge on the same row.
	var first uint
	for i := 0; i < 8; i++ {
		trigger, err := s.GetOrCreateTrigger(
			ctx, store.TriggerBranchPush, branch.ID,
		)
		require.NoError(t, err)

		if i == 0 {
			first = trigger.ID

			continue
		}

		assert.Equal(t, first, trigger.ID)
	}
}

func TestTriggerSubject(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	pr, err := s.GetOrCreatePullRequest(
		ctx, 342, "github.com", "packit", "hello-world", "",
	)
	require.NoError(t, err)

	trigger, err := s.GetOrCreateTrigger(ctx, store.TriggerPullRequest, pr.ID)
	require.NoError(t, err)

	subject, err := s.TriggerSubject(ctx, trigger)
	require.NoError(t, err)

	got, ok := subject.(store.PullRequest)
	require.True(t, ok)
	assert.Equal(t, pr.ID, got.ID)
	assert.Equal(t, store.TriggerPullRequest, got.TriggerKind())

	_, err = s.TriggerSubject(ctx, &store.Trigger{
		Kind: store.TriggerRelease, SubjectID: 9999,
	})
	require.Error(t, err)
}
