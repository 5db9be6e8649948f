// Package updater replaces the running binary with a newer GitHub release
// and keeps one backup of the previous binary for rollback.
package updater

import (
	"context"
	"time"
)

// State is the update state machine position.
type State string

const (
	StateIdle       State = "idle"
	StateChecking   State = "checking"
	StateAvailable  State = "available"
	StateApplying   State = "applying"
	StateRestarting State = "restarting"
	StateError      State = "error"
	StateRolledBack State = "rolled_back"
)

// Service checks for and installs releases.
type Service interface {
	CheckForUpdate(ctx context.Context) (*UpdateInfo, error)
	// ApplyUpdate installs the latest release and schedules a restart.
	ApplyUpdate(ctx context.Context) error
	// Rollback restores the backup and schedules a restart.
	Rollback(ctx context.Context) error
	GetStatus(ctx context.Context) *Status
	// IsEnabled is false when the binary directory is not writable.
	IsEnabled() bool
	DisabledReason() string
}

// UpdateInfo describes the newest release.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	ReleaseNotes    string    `json:"release_notes,omitempty"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	PublishedAt     time.Time `json:"published_at,omitzero"`
	UpdateAvailable bool      `json:"update_available"`
}

// Status is a snapshot of the updater.
type Status struct {
	State           State      `json:"state"`
	CurrentVersion  string     `json:"current_version"`
	TargetVersion   string     `json:"target_version,omitempty"`
	Error           string     `json:"error,omitempty"`
	LastChecked     *time.Time `json:"last_checked,omitempty"`
	BackupAvailable bool       `json:"backup_available"`
	BackupVersion   string     `json:"backup_version,omitempty"`
}

// Options configures the update service.
type Options struct {
	// Repository is the GitHub slug, e.g. "smazurov/ezvizbridge".
	Repository string
	Prerelease bool
	// BackupDir defaults to ~/.cache/ezvizbridge/backup.
	BackupDir string
	// Restart is called after a successful apply or rollback. The default
	// sends SIGTERM to the process so the supervisor starts the new binary.
	Restart func()
}
