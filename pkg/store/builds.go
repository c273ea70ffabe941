package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// triggerRef is the (kind, subject) pair a ledger record hangs off.
type triggerRef struct {
	Kind      TriggerKind
	SubjectID uint
}

// triggerRefFor loads the trigger reference for a ledger row with a single
// joined query. A zero kind means the row does not exist.
func (s *store) triggerRefFor(
	ctx context.Context, table string, id uint,
) (triggerRef, error) {
	var ref triggerRef

	err := s.db.WithContext(ctx).
		Table(table).
		Select("triggers.kind AS kind, triggers.subject_id AS subject_id").
		Joins("JOIN triggers ON triggers.id = "+table+".trigger_id").
		Where(table+".id = ?", id).
		Scan(&ref).Error
	if err != nil {
		return triggerRef{}, fmt.Errorf("resolving trigger for %s: %w", table, err)
	}

	return ref, nil
}

// projectForSubject resolves subject -> project with a single joined query.
func (s *store) projectForSubject(
	ctx context.Context, ref triggerRef,
) (*Project, error) {
	q := s.db.WithContext(ctx).Table("projects").Select("projects.*")

	switch ref.Kind {
	case TriggerPullRequest:
		q = q.Joins("JOIN pull_requests ON pull_requests.project_id = projects.id").
			Where("pull_requests.id = ?", ref.SubjectID)
	case TriggerBranchPush:
		q = q.Joins("JOIN branches ON branches.project_id = projects.id").
			Where("branches.id = ?", ref.SubjectID)
	case TriggerRelease:
		q = q.Joins("JOIN releases ON releases.project_id = projects.id").
			Where("releases.id = ?", ref.SubjectID)
	default:
		return nil, nil
	}

	var project Project
	if err := q.Take(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("resolving project: %w", err)
	}

	return &project, nil
}

// prNumberFor returns the PR number when the owning trigger's subject is a
// pull request, nil otherwise. Never an error for non-PR triggers.
func (s *store) prNumberFor(
	ctx context.Context, table string, id uint,
) (*int, error) {
	ref, err := s.triggerRefFor(ctx, table, id)
	if err != nil {
		return nil, err
	}

	if ref.Kind != TriggerPullRequest {
		return nil, nil
	}

	var pr PullRequest
	if err := s.db.WithContext(ctx).
		First(&pr, ref.SubjectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("resolving pull request: %w", err)
	}

	return &pr.Number, nil
}

// --- SRPM builds ---

func (s *store) CreateSRPMBuild(
	ctx context.Context, logs string, success bool,
) (*SRPMBuild, error) {
	build := &SRPMBuild{
		Logs:        logs,
		Success:     success,
		SubmittedAt: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(build).Error; err != nil {
		return nil, fmt.Errorf("creating srpm build: %w", err)
	}

	return build, nil
}

func (s *store) GetSRPMBuildByID(
	ctx context.Context, id uint,
) (*SRPMBuild, error) {
	var build SRPMBuild
	if err := s.db.WithContext(ctx).First(&build, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting srpm build by id: %w", err)
	}

	return &build, nil
}

// --- Copr builds ---

func validateBuildKey(buildID, target string, triggerID uint) error {
	switch {
	case buildID == "":
		return &ValidationError{Field: "build_id", Reason: "must not be empty"}
	case target == "":
		return &ValidationError{Field: "target", Reason: "must not be empty"}
	case triggerID == 0:
		return &ValidationError{
			Field: "trigger_id", Reason: "must reference an existing trigger",
		}
	}

	return nil
}

func (s *store) CreateCoprBuild(ctx context.Context, b *CoprBuild) error {
	if err := validateBuildKey(b.BuildID, b.Target, b.TriggerID); err != nil {
		return err
	}

	applyBuildDefaults(&b.Status, &b.SubmittedAt)

	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("creating copr build: %w", err)
	}

	return nil
}

func applyBuildDefaults(status *string, submittedAt *time.Time) {
	if *status == "" {
		*status = BuildStatusPending
	}

	if submittedAt.IsZero() {
		*submittedAt = time.Now().UTC()
	}
}

func (s *store) GetOrCreateCoprBuild(
	ctx context.Context, b *CoprBuild,
) (*CoprBuild, error) {
	if err := validateBuildKey(b.BuildID, b.Target, b.TriggerID); err != nil {
		return nil, err
	}

	applyBuildDefaults(&b.Status, &b.SubmittedAt)

	build, err := getOrCreate(
		s.db.WithContext(ctx),
		b,
		&CoprBuild{BuildID: b.BuildID, Target: b.Target},
	)
	if err != nil {
		return nil, fmt.Errorf("get-or-create copr build: %w", err)
	}

	return build, nil
}

func (s *store) GetCoprBuildByBuildID(
	ctx context.Context, buildID, target string,
) (*CoprBuild, error) {
	var build CoprBuild
	if err := s.db.WithContext(ctx).
		Where("build_id = ? AND target = ?", buildID, target).
		First(&build).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting copr build by build id: %w", err)
	}

	return &build, nil
}

func (s *store) GetCoprBuildByID(
	ctx context.Context, id uint,
) (*CoprBuild, error) {
	var build CoprBuild
	if err := s.db.WithContext(ctx).First(&build, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting copr build by id: %w", err)
	}

	return &build, nil
}

func (s *store) ListCoprBuilds(ctx context.Context) ([]CoprBuild, error) {
	var builds []CoprBuild
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&builds).Error; err != nil {
		return nil, fmt.Errorf("listing copr builds: %w", err)
	}

	return builds, nil
}

func (s *store) ListCoprBuildsByBuildID(
	ctx context.Context, buildID string,
) ([]CoprBuild, error) {
	var builds []CoprBuild
	if err := s.db.WithContext(ctx).
		Where("build_id = ?", buildID).
		Order("id ASC").
		Find(&builds).Error; err != nil {
		return nil, fmt.Errorf("listing copr builds by build id: %w", err)
	}

	return builds, nil
}

func (s *store) SetCoprBuildStatus(
	ctx context.Context, id uint, status string,
) error {
	if err := s.db.WithContext(ctx).
		Model(&CoprBuild{}).
		Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return fmt.Errorf("updating copr build status: %w", err)
	}

	return nil
}

func (s *store) SetCoprBuildLogsURL(
	ctx context.Context, id uint, url string,
) error {
	if err := s.db.WithContext(ctx).
		Model(&CoprBuild{}).
		Where("id = ?", id).
		Update("build_logs_url", url).Error; err != nil {
		return fmt.Errorf("updating copr build logs url: %w", err)
	}

	return nil
}

func (s *store) SetCoprBuildWebURL(
	ctx context.Context, id uint, url string,
) error {
	if err := s.db.WithContext(ctx).
		Model(&CoprBuild{}).
		Where("id = ?", id).
		Update("web_url", url).Error; err != nil {
		return fmt.Errorf("updating copr build web url: %w", err)
	}

	return nil
}

// SetCoprBuildFinishTime updates the finish timestamp. A nil time clears
// the column, used when a build is restarted.
func (s *store) SetCoprBuildFinishTime(
	ctx context.Context, id uint, t *time.Time,
) error {
	if err := s.db.WithContext(ctx).
		Model(&CoprBuild{}).
		Where("id = ?", id).
		Update("finished_at", t).Error; err != nil {
		return fmt.Errorf("updating copr build finish time: %w", err)
	}

	return nil
}

func (s *store) GetProjectForCoprBuild(
	ctx context.Context, id uint,
) (*Project, error) {
	ref, err := s.triggerRefFor(ctx, "copr_builds", id)
	if err != nil {
		return nil, err
	}

	return s.projectForSubject(ctx, ref)
}

func (s *store) PRNumberForCoprBuild(
	ctx context.Context, id uint,
) (*int, error) {
	return s.prNumberFor(ctx, "copr_builds", id)
}

// --- Koji builds ---

func (s *store) CreateKojiBuild(ctx context.Context, b *KojiBuild) error {
	if err := validateBuildKey(b.BuildID, b.Target, b.TriggerID); err != nil {
		return err
	}

	applyBuildDefaults(&b.Status, &b.SubmittedAt)

	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("creating koji build: %w", err)
	}

	return nil
}

func (s *store) GetOrCreateKojiBuild(
	ctx context.Context, b *KojiBuild,
) (*KojiBuild, error) {
	if err := validateBuildKey(b.BuildID, b.Target, b.TriggerID); err != nil {
		return nil, err
	}

	applyBuildDefaults(&b.Status, &b.SubmittedAt)

	build, err := getOrCreate(
		s.db.WithContext(ctx),
		b,
		&KojiBuild{BuildID: b.BuildID, Target: b.Target},
	)
	if err != nil {
		return nil, fmt.Errorf("get-or-create koji build: %w", err)
	}

	return build, nil
}

func (s *store) GetKojiBuildByBuildID(
	ctx context.Context, buildID, target string,
) (*KojiBuild, error) {
	var build KojiBuild
	if err := s.db.WithContext(ctx).
		Where("build_id = ? AND target = ?", buildID, target).
		First(&build).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting koji build by build id: %w", err)
	}

	return &build, nil
}

func (s *store) GetKojiBuildByID(
	ctx context.Context, id uint,
) (*KojiBuild, error) {
	var build KojiBuild
	if err := s.db.WithContext(ctx).First(&build, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting koji build by id: %w", err)
	}

	return &build, nil
}

func (s *store) ListKojiBuilds(ctx context.Context) ([]KojiBuild, error) {
	var builds []KojiBuild
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&builds).Error; err != nil {
		return nil, fmt.Errorf("listing koji builds: %w", err)
	}

	return builds, nil
}

func (s *store) ListKojiBuildsByBuildID(
	ctx context.Context, buildID string,
) ([]KojiBuild, error) {
	var builds []KojiBuild
	if err := s.db.WithContext(ctx).
		Where("build_id = ?", buildID).
		Order("id ASC").
		Find(&builds).Error; err != nil {
		return nil, fmt.Errorf("listing koji builds by build id: %w", err)
	}

	return builds, nil
}

func (s *store) SetKojiBuildStatus(
	ctx context.Context, id uint, status string,
) error {
	if err := s.db.WithContext(ctx).
		Model(&KojiBuild{}).
		Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return fmt.Errorf("updating koji build status: %w", err)
	}

	return nil
}

func (s *store) SetKojiBuildLogsURL(
	ctx context.Context, id uint, url string,
) error {
	if err := s.db.WithContext(ctx).
		Model(&KojiBuild{}).
		Where("id = ?", id).
		Update("build_logs_url", url).Error; err != nil {
		return fmt.Errorf("updating koji build logs url: %w", err)
	}

	return nil
}

func (s *store) SetKojiBuildWebURL(
	ctx context.Context, id uint, url string,
) error {
	if err := s.db.WithContext(ctx).
		Model(&KojiBuild{}).
		Where("id = ?", id).
		Update("web_url", url).Error; err != nil {
		return fmt.Errorf("updating koji build web url: %w", err)
	}

	return nil
}

// SetKojiBuildFinishTime updates the finish timestamp; nil clears it.
func (s *store) SetKojiBuildFinishTime(
	ctx context.Context, id uint, t *time.Time,
) error {
	if err := s.db.WithContext(ctx).
		Model(&KojiBuild{}).
		Where("id = ?", id).
		Update("finished_at", t).Error; err != nil {
		return fmt.Errorf("updating koji build finish time: %w", err)
	}

	return nil
}

func (s *store) GetProjectForKojiBuild(
	ctx context.Context, id uint,
) (*Project, error) {
	ref, err := s.triggerRefFor(ctx, "koji_builds", id)
	if err != nil {
		return nil, err
	}

	return s.projectForSubject(ctx, ref)
}

func (s *store) PRNumberForKojiBuild(
	ctx context.Context, id uint,
) (*int, error) {
	return s.prNumberFor(ctx, "koji_builds", id)
}
