package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

func validateRunKey(pipelineID string, triggerID uint) error {
	switch {
	case pipelineID == "":
		return &ValidationError{
			Field: "pipeline_id", Reason: "must not be empty",
		}
	case triggerID == 0:
		return &ValidationError{
			Field: "trigger_id", Reason: "must reference an existing trigger",
		}
	}

	return nil
}

func applyRunDefaults(r *TestingFarmRun) {
	if r.Status == "" {
		r.Status = TestingFarmNew
	}

	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = time.Now().UTC()
	}
}

func (s *store) CreateTestingFarmRun(
	ctx context.Context, r *TestingFarmRun,
) error {
	if err := validateRunKey(r.PipelineID, r.TriggerID); err != nil {
		return err
	}

	applyRunDefaults(r)

	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("creating testing farm run: %w", err)
	}

	return nil
}

func (s *store) GetOrCreateTestingFarmRun(
	ctx context.Context, r *TestingFarmRun,
) (*TestingFarmRun, error) {
	if err := validateRunKey(r.PipelineID, r.TriggerID); err != nil {
		return nil, err
	}

	applyRunDefaults(r)

	run, err := getOrCreate(
		s.db.WithContext(ctx),
		r,
		&TestingFarmRun{PipelineID: r.PipelineID},
	)
	if err != nil {
		return nil, fmt.Errorf("get-or-create testing farm run: %w", err)
	}

	return run, nil
}

func (s *store) GetTestingFarmRunByPipelineID(
	ctx context.Context, pipelineID string,
) (*TestingFarmRun, error) {
	var run TestingFarmRun
	if err := s.db.WithContext(ctx).
		Where("pipeline_id = ?", pipelineID).
		First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting testing farm run by pipeline id: %w", err)
	}

	return &run, nil
}

func (s *store) GetTestingFarmRunByID(
	ctx context.Context, id uint,
) (*TestingFarmRun, error) {
	var run TestingFarmRun
	if err := s.db.WithContext(ctx).First(&run, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting testing farm run by id: %w", err)
	}

	return &run, nil
}

func (s *store) ListTestingFarmRuns(
	ctx context.Context,
) ([]TestingFarmRun, error) {
	var runs []TestingFarmRun
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing testing farm runs: %w", err)
	}

	return runs, nil
}

func (s *store) SetTestingFarmRunStatus(
	ctx context.Context, id uint, status TestingFarmResult,
) error {
	if err := s.db.WithContext(ctx).
		Model(&TestingFarmRun{}).
		Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return fmt.Errorf("updating testing farm run status: %w", err)
	}

	return nil
}

func (s *store) SetTestingFarmRunWebURL(
	ctx context.Context, id uint, url string,
) error {
	if err := s.db.WithContext(ctx).
		Model(&TestingFarmRun{}).
		Where("id = ?", id).
		Update("web_url", url).Error; err != nil {
		return fmt.Errorf("updating testing farm run web url: %w", err)
	}

	return nil
}

func (s *store) GetProjectForTestingFarmRun(
	ctx context.Context, id uint,
) (*Project, error) {
	ref, err := s.triggerRefFor(ctx, "testing_farm_runs", id)
	if err != nil {
		return nil, err
	}

	return s.projectForSubject(ctx, ref)
}

func (s *store) PRNumberForTestingFarmRun(
	ctx context.Context, id uint,
) (*int, error) {
	return s.prNumberFor(ctx, "testing_farm_runs", id)
}
