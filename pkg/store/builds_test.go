package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeci/forgeci/pkg/store"
)

// prTrigger creates a pull request trigger for most build tests to hang
// records off.
func prTrigger(t *testing.T, s store.Store) *store.Trigger {
	t.Helper()

	ctx := context.Background()

	pr, err := s.GetOrCreatePullRequest(
		ctx, 342, "github.com", "packit", "hello-world",
		"https://github.com/packit/hello-world",
	)
	require.NoError(t, err)

	trigger, err := s.GetOrCreateTrigger(ctx, store.TriggerPullRequest, pr.ID)
	require.NoError(t, err)

	return trigger
}

func TestCreateSRPMBuild(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	build, err := s.CreateSRPMBuild(ctx, "asd\nqwe\n", true)
	require.NoError(t, err)
	require.NotZero(t, build.ID)
	assert.True(t, build.Success)
	assert.False(t, build.SubmittedAt.IsZero())

	got, err := s.GetSRPMBuildByID(ctx, build.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "asd\nqwe\n", got.Logs)

	missing, err := s.GetSRPMBuildByID(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCoprBuild_FanOut(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	trigger := prTrigger(t, s)

	// One farm build id fans out to one record per chroot target.
	for _, target := range []string{"fedora-42-x86_64", "fedora-43-x86_64"} {
		require.NoError(t, s.CreateCoprBuild(ctx, &store.CoprBuild{
			BuildID:     "123456",
			Target:      target,
			CommitSHA:   "687abc76d67d",
			ProjectName: "SomeUser-hello-world-9",
			Owner:       "packit",
			WebURL:      "https://copr.example.com/build/123456",
			TriggerID:   trigger.ID,
		}))
	}

	a, err := s.GetCoprBuildByBuildID(ctx, "123456", "fedora-42-x86_64")
	require.NoError(t, err)
	require.NotNil(t, a)

	b, err := s.GetCoprBuildByBuildID(ctx, "123456", "fedora-43-x86_64")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.NotEqual(t, a.ID, b.ID)

	all, err := s.ListCoprBuildsByBuildID(ctx, "123456")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	missing, err := s.GetCoprBuildByBuildID(ctx, "123456", "fedora-rawhide-x86_64")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetOrCreateCoprBuild_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	trigger := prTrigger(t, s)

	first, err := s.GetOrCreateCoprBuild(ctx, &store.CoprBuild{
		BuildID:   "123456",
		Target:    "fedora-42-x86_64",
		TriggerID: trigger.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, store.BuildStatusPending, first.Status)

	second, err := s.GetOrCreateCoprBuild(ctx, &store.CoprBuild{
		BuildID:   "123456",
		Target:    "fedora-42-x86_64",
		TriggerID: trigger.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestCoprBuild_Validation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	trigger := prTrigger(t, s)

	var verr *store.ValidationError

	err := s.CreateCoprBuild(ctx, &store.CoprBuild{
		Target: "fedora-42-x86_64", TriggerID: trigger.ID,
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "build_id", verr.Field)

	err = s.CreateCoprBuild(ctx, &store.CoprBuild{
		BuildID: "123456", TriggerID: trigger.ID,
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "target", verr.Field)

	err = s.CreateCoprBuild(ctx, &store.CoprBuild{
		BuildID: "123456", Target: "fedora-42-x86_64",
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "trigger_id", verr.Field)

	// Nothing was written.
	builds, err := s.ListCoprBuilds(ctx)
	require.NoError(t, err)
	assert.Empty(t, builds)
}

func TestCoprBuild_Updates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	trigger := prTrigger(t, s)

	build, err := s.GetOrCreateCoprBuild(ctx, &store.CoprBuild{
		BuildID:   "123456",
		Target:    "fedora-42-x86_64",
		TriggerID: trigger.ID,
	})
	require.NoError(t, err)

	require.NoError(t, s.SetCoprBuildStatus(
		ctx, build.ID, store.BuildStatusSuccess,
	))
	require.NoError(t, s.SetCoprBuildLogsURL(
		ctx, build.ID, "https://copr.example.com/logs/123456",
	))
	require.NoError(t, s.SetCoprBuildWebURL(
		ctx, build.ID, "https://copr.example.com/build/123456",
	))

	finished := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetCoprBuildFinishTime(ctx, build.ID, &finished))

	got, err := s.GetCoprBuildByID(ctx, build.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, store.BuildStatusSuccess, got.Status)
	assert.Equal(t, "https://copr.example.com/logs/123456", got.BuildLogsURL)
	assert.Equal(t, "https://copr.example.com/build/123456", got.WebURL)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finished))

	// A nil time clears the column, as on a restarted build.
	require.NoError(t, s.SetCoprBuildFinishTime(ctx, build.ID, nil))

	got, err = s.GetCoprBuildByID(ctx, build.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.FinishedAt)
}

func TestCoprBuild_FarmReportedStates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	trigger := prTrigger(t, s)

	build, err := s.GetOrCreateCoprBuild(ctx, &store.CoprBuild{
		BuildID:   "123456",
		Target:    "fedora-42-x86_64",
		TriggerID: trigger.ID,
	})
	require.NoError(t, err)

	// The status column carries the farm's own vocabulary verbatim.
	require.NoError(t, s.SetCoprBuildStatus(
		ctx, build.ID, store.CoprStateSucceeded,
	))

	got, err := s.GetCoprBuildByID(ctx, build.ID)
	require.NoError(t, err)
	assert.Equal(t, store.CoprStateSucceeded, got.Status)

	require.NoError(t, s.SetCoprBuildStatus(
		ctx, build.ID, store.CoprStateFailed,
	))

	got, err = s.GetCoprBuildByID(ctx, build.ID)
	require.NoError(t, err)
	assert.Equal(t, store.CoprStateFailed, got.Status)
}

func TestCoprBuild_ProjectAndPRNumber(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	trigger := prTrigger(t, s)

	build := &store.CoprBuild{
		BuildID:   "123456",
		Target:    "fedora-42-x86_64",
		TriggerID: trigger.ID,
	}
	require.NoError(t, s.CreateCoprBuild(ctx, build))

	project, err := s.GetProjectForCoprBuild(ctx, build.ID)
	require.NoError(t, err)
	require.NotNil(t, project)
	assert.Equal(t, "packit", project.Namespace)
	assert.Equal(t, "hello-world", project.RepoName)

	number, err := s.PRNumberForCoprBuild(ctx, build.ID)
	require.NoError(t, err)
	require.NotNil(t, number)
	assert.Equal(t, 342, *number)
}

func TestPRNumber_NilForNonPRTriggers(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	branch, err := s.GetOrCreateBranch(
		ctx, "main", "github.com", "packit", "hello-world", "",
	)
	require.NoError(t, err)

	branchTrigger, err := s.GetOrCreateTrigger(
		ctx, store.TriggerBranchPush, branch.ID,
	)
	require.NoError(t, err)

	branchBuild := &store.CoprBuild{
		BuildID:   "123456",
		Target:    "fedora-42-x86_64",
		TriggerID: branchTrigger.ID,
	}
	require.NoError(t, s.CreateCoprBuild(ctx, branchBuild))

	number, err := s.PRNumberForCoprBuild(ctx, branchBuild.ID)
	require.NoError(t, err)
	assert.Nil(t, number)

	release, err := s.GetOrCreateRelease(
		ctx, "v1.0.2", "80201a74d96c", "github.com", "packit", "hello-world", "",
	)
	require.NoError(t, err)

	releaseTrigger, err := s.GetOrCreateTrigger(
		ctx, store.TriggerRelease, release.ID,
	)
	require.NoError(t, err)

	releaseBuild := &store.KojiBuild{
		BuildID:   "987654",
		Target:    "fedora-42-x86_64",
		TriggerID: releaseTrigger.ID,
	}
	require.NoError(t, s.CreateKojiBuild(ctx, releaseBuild))

	number, err = s.PRNumberForKojiBuild(ctx, releaseBuild.ID)
	require.NoError(t, err)
	assert.Nil(t, number)
}

func TestKojiBuild_Ledger(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	trigger := prTrigger(t, s)

	for _, target := range []string{"fedora-42-x86_64", "fedora-43-x86_64"} {
		require.NoError(t, s.CreateKojiBuild(ctx, &store.KojiBuild{
			BuildID:   "987654",
			Target:    target,
			CommitSHA: "687abc76d67d",
			TriggerID: trigger.ID,
		}))
	}

	all, err := s.ListKojiBuildsByBuildID(ctx, "987654")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	build, err := s.GetKojiBuildByBuildID(ctx, "987654", "fedora-42-x86_64")
	require.NoError(t, err)
	require.NotNil(t, build)
	assert.Equal(t, store.BuildStatusPending, build.Status)

	require.NoError(t, s.SetKojiBuildStatus(
		ctx, build.ID, store.BuildStatusFailure,
	))

	got, err := s.GetKojiBuildByID(ctx, build.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, store.BuildStatusFailure, got.Status)

	project, err := s.GetProjectForKojiBuild(ctx, build.ID)
	require.NoError(t, err)
	require.NotNil(t, project)
	assert.Equal(t, "hello-world", project.RepoName)
}

func TestBuild_LinksSRPMBuild(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	trigger := prTrigger(t, s)

	srpm, err := s.CreateSRPMBuild(ctx, "", true)
	require.NoError(t, err)

	build := &store.CoprBuild{
		BuildID:     "123456",
		Target:      "fedora-42-x86_64",
		SRPMBuildID: &srpm.ID,
		TriggerID:   trigger.ID,
	}
	require.NoError(t, s.CreateCoprBuild(ctx, build))

	got, err := s.GetCoprBuildByID(ctx, build.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.SRPMBuildID)
	assert.Equal(t, srpm.ID, *got.SRPMBuildID)
}
