package store

import (
	"time"

	"gorm.io/datatypes"
)

// Build status strings shared by the Copr and Koji ledgers. The column is
// free-form because the farms report their own vocabularies; these are the
// values forgeci itself writes.
const (
	BuildStatusPending = "pending"
	BuildStatusSuccess = "success"
	BuildStatusFailure = "failure"
)

// Terminal states as the Copr farm itself reports them in callbacks.
const (
	CoprStateSucceeded = "succeeded"
	CoprStateFailed    = "failed"
)

// TriggerKind discriminates the polymorphic trigger subject.
type TriggerKind string

// Trigger kinds.
const (
	TriggerPullRequest TriggerKind = "pull_request"
	TriggerBranchPush  TriggerKind = "branch_push"
	TriggerRelease     TriggerKind = "release"
)

func validTriggerKind(kind TriggerKind) bool {
	switch kind {
	case TriggerPullRequest, TriggerBranchPush, TriggerRelease:
		return true
	}

	return false
}

// TestingFarmResult is the status of a Testing Farm pipeline.
type TestingFarmResult string

// Testing Farm pipeline statuses.
const (
	TestingFarmNew     TestingFarmResult = "new"
	TestingFarmQueued  TestingFarmResult = "queued"
	TestingFarmRunning TestingFarmResult = "running"
	TestingFarmPassed  TestingFarmResult = "passed"
	TestingFarmFailed  TestingFarmResult = "failed"
	TestingFarmError   TestingFarmResult = "error"
	TestingFarmUnknown TestingFarmResult = "unknown"
)

// Terminal reports whether the pipeline is not expected to transition
// further. The store does not enforce this; late callbacks still win.
func (r TestingFarmResult) Terminal() bool {
	switch r {
	case TestingFarmPassed, TestingFarmFailed, TestingFarmError:
		return true
	}

	return false
}

// Project is a forge repository. Created lazily on first reference;
// many trigger subjects point at one project.
type Project struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ForgeHost  string    `gorm:"uniqueIndex:idx_projects_key;not null" json:"forge_host"`
	Namespace  string    `gorm:"uniqueIndex:idx_projects_key;not null" json:"namespace"`
	RepoName   string    `gorm:"uniqueIndex:idx_projects_key;not null" json:"repo_name"`
	ProjectURL string    `json:"project_url"`
	CreatedAt  time.Time `json:"created_at"`
}

// PullRequest is a trigger subject identified by (project, PR number).
type PullRequest struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Number    int       `gorm:"uniqueIndex:idx_pull_requests_key;not null" json:"number"`
	ProjectID uint      `gorm:"uniqueIndex:idx_pull_requests_key;not null" json:"project_id"`
	Project   Project   `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Branch is a trigger subject identified by (project, branch name).
type Branch struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex:idx_branches_key;not null" json:"name"`
	ProjectID uint      `gorm:"uniqueIndex:idx_branches_key;not null" json:"project_id"`
	Project   Project   `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Release is a trigger subject identified by (project, tag name).
type Release struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TagName    string    `gorm:"uniqueIndex:idx_releases_key;not null" json:"tag_name"`
	CommitHash string    `json:"commit_hash"`
	ProjectID  uint      `gorm:"uniqueIndex:idx_releases_key;not null" json:"project_id"`
	Project    Project   `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// Trigger gives a (kind, subject) pair a stable identity that build and
// test-run records link to. At most one row exists per pair.
type Trigger struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	Kind      TriggerKind `gorm:"uniqueIndex:idx_triggers_key;not null" json:"kind"`
	SubjectID uint        `gorm:"uniqueIndex:idx_triggers_key;not null" json:"subject_id"`
	CreatedAt time.Time   `json:"created_at"`
}

// Subject is implemented by the trigger subject records.
type Subject interface {
	TriggerKind() TriggerKind
}

// TriggerKind implements Subject.
func (PullRequest) TriggerKind() TriggerKind { return TriggerPullRequest }

// TriggerKind implements Subject.
func (Branch) TriggerKind() TriggerKind { return TriggerBranchPush }

// TriggerKind implements Subject.
func (Release) TriggerKind() TriggerKind { return TriggerRelease }

// SRPMBuild is an immutable record of a source package build attempt.
// A single SRPM build can feed both a Copr and a Koji build.
type SRPMBuild struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Logs        string    `json:"logs"`
	Success     bool      `json:"success"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// CoprBuild is one Copr build-farm job. The farm-assigned build id fans
// out to one row per target; (build_id, target) is the natural key.
type CoprBuild struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	BuildID      string     `gorm:"uniqueIndex:idx_copr_builds_key;index;not null" json:"build_id"`
	Target       string     `gorm:"uniqueIndex:idx_copr_builds_key;not null" json:"target"`
	CommitSHA    string     `json:"commit_sha"`
	ProjectName  string     `json:"project_name"`
	Owner        string     `json:"owner"`
	Status       string     `json:"status"`
	WebURL       string     `json:"web_url"`
	BuildLogsURL string     `json:"build_logs_url"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	SRPMBuildID  *uint      `json:"srpm_build_id"`
	SRPMBuild    *SRPMBuild `json:"-"`
	TriggerID    uint       `gorm:"not null;index" json:"trigger_id"`
	Trigger      Trigger    `json:"-"`
}

// KojiBuild is one Koji build-farm job, keyed like CoprBuild.
type KojiBuild struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	BuildID      string     `gorm:"uniqueIndex:idx_koji_builds_key;index;not null" json:"build_id"`
	Target       string     `gorm:"uniqueIndex:idx_koji_builds_key;not null" json:"target"`
	CommitSHA    string     `json:"commit_sha"`
	Status       string     `json:"status"`
	WebURL       string     `json:"web_url"`
	BuildLogsURL string     `json:"build_logs_url"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	SRPMBuildID  *uint      `json:"srpm_build_id"`
	SRPMBuild    *SRPMBuild `json:"-"`
	TriggerID    uint       `gorm:"not null;index" json:"trigger_id"`
	Trigger      Trigger    `json:"-"`
}

// TestingFarmRun is one test pipeline execution. The provider-assigned
// pipeline id is globally unique, so it alone is the natural key.
type TestingFarmRun struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	PipelineID  string            `gorm:"uniqueIndex;not null" json:"pipeline_id"`
	CommitSHA   string            `json:"commit_sha"`
	Target      string            `json:"target"`
	Status      TestingFarmResult `gorm:"not null" json:"status"`
	WebURL      string            `json:"web_url"`
	SubmittedAt time.Time         `json:"submitted_at"`
	TriggerID   uint              `gorm:"not null;index" json:"trigger_id"`
	Trigger     Trigger           `json:"-"`
}

// TaskResult stores the triggering event and per-job outcome payloads for
// one dispatched task. Written once per task id in normal operation;
// rewrites are last-write-wins.
type TaskResult struct {
	ID        uint           `gorm:"primaryKey" json:"-"`
	TaskID    string         `gorm:"uniqueIndex;not null" json:"task_id"`
	Event     datatypes.JSON `json:"event"`
	Jobs      datatypes.JSON `json:"jobs"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Installation is one GitHub App installation, upserted on the install
// webhook and keyed by the account login.
type Installation struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	AccountLogin   string    `gorm:"uniqueIndex;not null" json:"account_login"`
	AccountID      int64     `json:"account_id"`
	AccountType    string    `json:"account_type"`
	AccountURL     string    `json:"account_url"`
	SenderLogin    string    `json:"sender_login"`
	SenderID       int64     `json:"sender_id"`
	InstallationID int64     `json:"installation_id"`
	InstalledAt    time.Time `json:"installed_at"`
}
