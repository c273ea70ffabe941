package store

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/forgeci/forgeci/pkg/config"
)

// ValidationError reports a malformed natural-key field on a create or
// get-or-create call. No rows are written when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Store provides persistence for triggers and the build/test-run ledger.
//
// All get-or-create operations are safe under concurrent invocation with
// identical keys: uniqueness constraints on the natural keys are the sole
// synchronization point, via insert-if-absent followed by a refetch.
// Lookup misses return (nil, nil), never an error. Status updates are
// last-writer-wins; callbacks from the farms may arrive out of order and
// the store does not reorder them.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Trigger registry.
	GetOrCreateProject(ctx context.Context, forgeHost, namespace, repoName, projectURL string) (*Project, error)
	GetOrCreatePullRequest(ctx context.Context, number int, forgeHost, namespace, repoName, projectURL string) (*PullRequest, error)
	GetOrCreateBranch(ctx context.Context, name, forgeHost, namespace, repoName, projectURL string) (*Branch, error)
	GetOrCreateRelease(ctx context.Context, tagName, commitHash, forgeHost, namespace, repoName, projectURL string) (*Release, error)
	GetOrCreateTrigger(ctx context.Context, kind TriggerKind, subjectID uint) (*Trigger, error)
	TriggerSubject(ctx context.Context, trigger *Trigger) (Subject, error)

	// SRPM builds.
	CreateSRPMBuild(ctx context.Context, logs string, success bool) (*SRPMBuild, error)
	GetSRPMBuildByID(ctx context.Context, id uint) (*SRPMBuild, error)

	// Copr builds.
	CreateCoprBuild(ctx context.Context, b *CoprBuild) error
	GetOrCreateCoprBuild(ctx context.Context, b *CoprBuild) (*CoprBuild, error)
	GetCoprBuildByBuildID(ctx context.Context, buildID, target string) (*CoprBuild, error)
	GetCoprBuildByID(ctx context.Context, id uint) (*CoprBuild, error)
	ListCoprBuilds(ctx context.Context) ([]CoprBuild, error)
	ListCoprBuildsByBuildID(ctx context.Context, buildID string) ([]CoprBuild, error)
	SetCoprBuildStatus(ctx context.Context, id uint, status string) error
	SetCoprBuildLogsURL(ctx context.Context, id uint, url string) error
	SetCoprBuildWebURL(ctx context.Context, id uint, url string) error
	SetCoprBuildFinishTime(ctx context.Context, id uint, t *time.Time) error
	GetProjectForCoprBuild(ctx context.Context, id uint) (*Project, error)
	PRNumberForCoprBuild(ctx context.Context, id uint) (*int, error)

	// Koji builds.
	CreateKojiBuild(ctx context.Context, b *KojiBuild) error
	GetOrCreateKojiBuild(ctx context.Context, b *KojiBuild) (*KojiBuild, error)
	GetKojiBuildByBuildID(ctx context.Context, buildID, target string) (*KojiBuild, error)
	GetKojiBuildByID(ctx context.Context, id uint) (*KojiBuild, error)
	ListKojiBuilds(ctx context.Context) ([]KojiBuild, error)
	ListKojiBuildsByBuildID(ctx context.Context, buildID string) ([]KojiBuild, error)
	SetKojiBuildStatus(ctx context.Context, id uint, status string) error
	SetKojiBuildLogsURL(ctx context.Context, id uint, url string) error
	SetKojiBuildWebURL(ctx context.Context, id uint, url string) error
	SetKojiBuildFinishTime(ctx context.Context, id uint, t *time.Time) error
	GetProjectForKojiBuild(ctx context.Context, id uint) (*Project, error)
	PRNumberForKojiBuild(ctx context.Context, id uint) (*int, error)

	// Testing Farm runs.
	CreateTestingFarmRun(ctx context.Context, r *TestingFarmRun) error
	GetOrCreateTestingFarmRun(ctx context.Context, r *TestingFarmRun) (*TestingFarmRun, error)
	GetTestingFarmRunByPipelineID(ctx context.Context, pipelineID string) (*TestingFarmRun, error)
	GetTestingFarmRunByID(ctx context.Context, id uint) (*TestingFarmRun, error)
	ListTestingFarmRuns(ctx context.Context) ([]TestingFarmRun, error)
	SetTestingFarmRunStatus(ctx context.Context, id uint, status TestingFarmResult) error
	SetTestingFarmRunWebURL(ctx context.Context, id uint, url string) error
	GetProjectForTestingFarmRun(ctx context.Context, id uint) (*Project, error)
	PRNumberForTestingFarmRun(ctx context.Context, id uint) (*int, error)

	// Task results.
	UpsertTaskResult(ctx context.Context, r *TaskResult) error
	GetTaskResult(ctx context.Context, taskID string) (*TaskResult, error)
	ListTaskResults(ctx context.Context) ([]TaskResult, error)

	// GitHub App installations.
	UpsertInstallation(ctx context.Context, i *Installation) error
	GetInstallationByAccountLogin(ctx context.Context, login string) (*Installation, error)
	ListInstallations(ctx context.Context) ([]Installation, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var (
		dialector gorm.Dialector
		err       error
	)

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case config.DriverPostgres:
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	s.db, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Project{},
		&PullRequest{},
		&Branch{},
		&Release{},
		&Trigger{},
		&SRPMBuild{},
		&CoprBuild{},
		&KojiBuild{},
		&TestingFarmRun{},
		&TaskResult{},
		&Installation{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}
