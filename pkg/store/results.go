package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// UpsertTaskResult stores the event and job payloads for a task id.
// Rewrites are last-write-wins.
func (s *store) UpsertTaskResult(ctx context.Context, r *TaskResult) error {
	if r.TaskID == "" {
		return &ValidationError{Field: "task_id", Reason: "must not be empty"}
	}

	result := s.db.WithContext(ctx).
		Where("task_id = ?", r.TaskID).
		Assign(TaskResult{Event: r.Event, Jobs: r.Jobs}).
		FirstOrCreate(r)
	if result.Error != nil {
		return fmt.Errorf("upserting task result: %w", result.Error)
	}

	return nil
}

func (s *store) GetTaskResult(
	ctx context.Context, taskID string,
) (*TaskResult, error) {
	var r TaskResult
	if err := s.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting task result: %w", err)
	}

	return &r, nil
}

func (s *store) ListTaskResults(ctx context.Context) ([]TaskResult, error) {
	var results []TaskResult
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("listing task results: %w", err)
	}

	return results, nil
}

// UpsertInstallation records a GitHub App installation, updating the row
// for the account login if one already exists.
func (s *store) UpsertInstallation(
	ctx context.Context, i *Installation,
) error {
	if i.AccountLogin == "" {
		return &ValidationError{
			Field: "account_login", Reason: "must not be empty",
		}
	}

	result := s.db.WithContext(ctx).
		Where("account_login = ?", i.AccountLogin).
		Assign(Installation{
			AccountID:      i.AccountID,
			AccountType:    i.AccountType,
			AccountURL:     i.AccountURL,
			SenderLogin:    i.SenderLogin,
			SenderID:       i.SenderID,
			InstallationID: i.InstallationID,
			InstalledAt:    i.InstalledAt,
		}).
		FirstOrCreate(i)
	if result.Error != nil {
		return fmt.Errorf("upserting installation: %w", result.Error)
	}

	return nil
}

func (s *store) GetInstallationByAccountLogin(
	ctx context.Context, login string,
) (*Installation, error) {
	var i Installation
	if err := s.db.WithContext(ctx).
		Where("account_login = ?", login).
		First(&i).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting installation by account login: %w", err)
	}

	return &i, nil
}

func (s *store) ListInstallations(
	ctx context.Context,
) ([]Installation, error) {
	var installations []Installation
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&installations).Error; err != nil {
		return nil, fmt.Errorf("listing installations: %w", err)
	}

	return installations, nil
}
