package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// getOrCreate inserts row if its natural key is absent, then refetches the
// surviving row by cond. The DoNothing insert makes concurrent callers with
// the same key converge on one row via the unique index.
func getOrCreate[T any](tx *gorm.DB, row *T, cond *T) (*T, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(row).Error; err != nil {
		return nil, fmt.Errorf("inserting record: %w", err)
	}

	var out T
	if err := tx.Where(cond).First(&out).Error; err != nil {
		return nil, fmt.Errorf("refetching record: %w", err)
	}

	return &out, nil
}

func (s *store) GetOrCreateProject(
	ctx context.Context, forgeHost, namespace, repoName, projectURL string,
) (*Project, error) {
	if err := validateProjectKey(forgeHost, namespace, repoName); err != nil {
		return nil, err
	}

	return getOrCreate(
		s.db.WithContext(ctx),
		&Project{
			ForgeHost:  forgeHost,
			Namespace:  namespace,
			RepoName:   repoName,
			ProjectURL: projectURL,
		},
		&Project{ForgeHost: forgeHost, Namespace: namespace, RepoName: repoName},
	)
}

func validateProjectKey(forgeHost, namespace, repoName string) error {
	switch {
	case strings.TrimSpace(forgeHost) == "":
		return &ValidationError{Field: "forge_host", Reason: "must not be empty"}
	case strings.TrimSpace(namespace) == "":
		return &ValidationError{Field: "namespace", Reason: "must not be empty"}
	case strings.TrimSpace(repoName) == "":
		return &ValidationError{Field: "repo_name", Reason: "must not be empty"}
	}

	return nil
}

func (s *store) GetOrCreatePullRequest(
	ctx context.Context,
	number int,
	forgeHost, namespace, repoName, projectURL string,
) (*PullRequest, error) {
	if number <= 0 {
		return nil, &ValidationError{
			Field: "pr_number", Reason: "must be a positive integer",
		}
	}

	if err := validateProjectKey(forgeHost, namespace, repoName); err != nil {
		return nil, err
	}

	var pr *PullRequest

	// Project and pull request are committed together or not at all.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := getOrCreate(
			tx,
			&Project{
				ForgeHost:  forgeHost,
				Namespace:  namespace,
				RepoName:   repoName,
				ProjectURL: projectURL,
			},
			&Project{ForgeHost: forgeHost, Namespace: namespace, RepoName: repoName},
		)
		if err != nil {
			return err
		}

		pr, err = getOrCreate(
			tx,
			&PullRequest{Number: number, ProjectID: project.ID},
			&PullRequest{Number: number, ProjectID: project.ID},
		)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get-or-create pull request: %w", err)
	}

	return pr, nil
}

func (s *store) GetOrCreateBranch(
	ctx context.Context,
	name, forgeHost, namespace, repoName, projectURL string,
) (*Branch, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &ValidationError{
			Field: "branch_name", Reason: "must not be empty",
		}
	}

	if err := validateProjectKey(forgeHost, namespace, repoName); err != nil {
		return nil, err
	}

	var branch *Branch

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := getOrCreate(
			tx,
			&Project{
				ForgeHost:  forgeHost,
				Namespace:  namespace,
				RepoName:   repoName,
				ProjectURL: projectURL,
			},
			&Project{ForgeHost: forgeHost, Namespace: namespace, RepoName: repoName},
		)
		if err != nil {
			return err
		}

		branch, err = getOrCreate(
			tx,
			&Branch{Name: name, ProjectID: project.ID},
			&Branch{Name: name, ProjectID: project.ID},
		)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get-or-create branch: %w", err)
	}

	return branch, nil
}

func (s *store) GetOrCreateRelease(
	ctx context.Context,
	tagName, commitHash, forgeHost, namespace, repoName, projectURL string,
) (*Release, error) {
	if strings.TrimSpace(tagName) == "" {
		return nil, &ValidationError{
			Field: "tag_name", Reason: "must not be empty",
		}
	}

	if err := validateProjectKey(forgeHost, namespace, repoName); err != nil {
		return nil, err
	}

	var release *Release

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := getOrCreate(
			tx,
			&Project{
				ForgeHost:  forgeHost,
				Namespace:  namespace,
				RepoName:   repoName,
				ProjectURL: projectURL,
			},
			&Project{ForgeHost: forgeHost, Namespace: namespace, RepoName: repoName},
		)
		if err != nil {
			return err
		}

		release, err = getOrCreate(
			tx,
			&Release{
				TagName:    tagName,
				CommitHash: commitHash,
				ProjectID:  project.ID,
			},
			&Release{TagName: tagName, ProjectID: project.ID},
		)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get-or-create release: %w", err)
	}

	return release, nil
}

func (s *store) GetOrCreateTrigger(
	ctx context.Context, kind TriggerKind, subjectID uint,
) (*Trigger, error) {
	if !validTriggerKind(kind) {
		return nil, &ValidationError{
			Field: "kind", Reason: fmt.Sprintf("unknown trigger kind %q", kind),
		}
	}

	if subjectID == 0 {
		return nil, &ValidationError{
			Field: "subject_id", Reason: "must reference an existing subject",
		}
	}

	trigger, err := getOrCreate(
		s.db.WithContext(ctx),
		&Trigger{Kind: kind, SubjectID: subjectID},
		&Trigger{Kind: kind, SubjectID: subjectID},
	)
	if err != nil {
		return nil, fmt.Errorf("get-or-create trigger: %w", err)
	}

	return trigger, nil
}

// TriggerSubject resolves the polymorphic trigger reference by switching
// on the kind discriminant.
func (s *store) TriggerSubject(
	ctx context.Context, trigger *Trigger,
) (Subject, error) {
	db := s.db.WithContext(ctx)

	switch trigger.Kind {
	case TriggerPullRequest:
		var pr PullRequest
		if err := db.First(&pr, trigger.SubjectID).Error; err != nil {
			return nil, subjectErr(err, trigger)
		}

		return pr, nil
	case TriggerBranchPush:
		var branch Branch
		if err := db.First(&branch, trigger.SubjectID).Error; err != nil {
			return nil, subjectErr(err, trigger)
		}

		return branch, nil
	case TriggerRelease:
		var release Release
		if err := db.First(&release, trigger.SubjectID).Error; err != nil {
			return nil, subjectErr(err, trigger)
		}

		return release, nil
	default:
		return nil, fmt.Errorf("unknown trigger kind %q", trigger.Kind)
	}
}

func subjectErr(err error, trigger *Trigger) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf(
			"trigger %d references missing %s subject %d",
			trigger.ID, trigger.Kind, trigger.SubjectID,
		)
	}

	return fmt.Errorf("resolving trigger subject: %w", err)
}
