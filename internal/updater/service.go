package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/smazurov/ezvizbridge/internal/version"
)

// DefaultRepository is where releases are published.
const DefaultRepository = "smazurov/ezvizbridge"

const restartDelay = 500 * time.Millisecond

// releaseSource is the part of *selfupdate.Updater the service uses.
type releaseSource interface {
	DetectLatest(ctx context.Context, repo selfupdate.Repository) (*selfupdate.Release, bool, error)
	UpdateTo(ctx context.Context, rel *selfupdate.Release, cmdPath string) error
}

type service struct {
	source     releaseSource
	repository selfupdate.Repository
	backups    *backups
	execPath   func() (string, error)
	restart    func()

	mu          sync.RWMutex
	state       State
	latest      *selfupdate.Release
	lastChecked *time.Time
	lastError   error

	enabled        bool
	disabledReason string

	logger *slog.Logger
}

// NewService creates the update service. When the binary cannot be replaced
// the service is returned disabled and every operation fails with DISABLED.
func NewService(opts Options, logger *slog.Logger) (Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Repository == "" {
		opts.Repository = DefaultRepository
	}

	s := &service{
		repository: selfupdate.ParseSlug(opts.Repository),
		execPath:   selfupdate.ExecutablePath,
		restart:    opts.Restart,
		state:      StateIdle,
		logger:     logger,
	}
	if s.restart == nil {
		s.restart = s.signalRestart
	}

	if ok, reason := canReplaceBinary(); !ok {
		logger.Warn("Update service disabled", "reason", reason)
		s.disabledReason = reason
		return s, nil
	}

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("github source: %w", err)
	}
	up, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     source,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("create updater: %w", err)
	}
	s.source = up
	s.enabled = true

	dir := opts.BackupDir
	if dir == "" {
		dir, err = defaultBackupDir()
	}
	if err == nil {
		s.backups, err = newBackups(dir, logger)
	}
	if err != nil {
		logger.Warn("Backups disabled, rollback will not be possible", "error", err)
	}
	return s, nil
}

// canReplaceBinary reports whether a file can be created next to the executable.
func canReplaceBinary() (bool, string) {
	exe, err := os.Executable()
	if err != nil {
		return false, fmt.Sprintf("executable path: %v", err)
	}
	if exe, err = filepath.EvalSymlinks(exe); err != nil {
		return false, fmt.Sprintf("resolve executable: %v", err)
	}

	probe := filepath.Join(filepath.Dir(exe), ".ezvizbridge.update.test")
	f, err := os.Create(probe)
	if err != nil {
		return false, fmt.Sprintf("no write permission to %s: %v", filepath.Dir(exe), err)
	}
	f.Close()
	os.Remove(probe)
	return true, ""
}

func (s *service) IsEnabled() bool        { return s.enabled }
func (s *service) DisabledReason() string { return s.disabledReason }

func (s *service) CheckForUpdate(ctx context.Context) (*UpdateInfo, error) {
	if !s.enabled {
		return nil, newError(ErrCodeDisabled, s.disabledReason, nil)
	}
	if !s.transition(StateChecking, StateIdle, StateAvailable, StateError, StateRolledBack) {
		return nil, newError(ErrCodeInvalidState, fmt.Sprintf("cannot check for updates while %s", s.currentState()), nil)
	}

	release, found, err := s.source.DetectLatest(ctx, s.repository)
	now := time.Now()
	s.mu.Lock()
	s.lastChecked = &now
	s.mu.Unlock()

	if err != nil {
		s.fail(err)
		return nil, newError(ErrCodeCheckFailed, "release lookup failed", err)
	}
	if !found {
		err := errors.New("repository not found or has no releases")
		s.fail(err)
		return nil, newError(ErrCodeNotFound, err.Error(), nil)
	}

	current := version.Version
	info := &UpdateInfo{
		CurrentVersion: current,
		LatestVersion:  release.Version(),
	}
	// Development builds always take the latest release.
	if current != "dev" && !release.GreaterThan(current) {
		s.transition(StateIdle)
		return info, nil
	}

	s.mu.Lock()
	s.latest = release
	s.mu.Unlock()
	s.transition(StateAvailable)

	info.ReleaseNotes = release.ReleaseNotes
	info.ReleaseURL = release.URL
	info.PublishedAt = release.PublishedAt
	info.UpdateAvailable = true
	return info, nil
}

func (s *service) ApplyUpdate(ctx context.Context) error {
	if !s.enabled {
		return newError(ErrCodeDisabled, s.disabledReason, nil)
	}
	if s.currentState() != StateAvailable {
		info, err := s.CheckForUpdate(ctx)
		if err != nil {
			return err
		}
		if !info.UpdateAvailable {
			return newError(ErrCodeNoUpdate, "already running "+info.CurrentVersion, nil)
		}
	}
	if !s.transition(StateApplying, StateAvailable) {
		return newError(ErrCodeInvalidState, fmt.Sprintf("cannot apply update while %s", s.currentState()), nil)
	}

	exe, err := s.execPath()
	if err != nil {
		s.fail(err)
		return newError(ErrCodeApplyFailed, "executable path", err)
	}
	if s.backups != nil {
		if err := s.backups.save(exe, version.Version); err != nil {
			s.fail(err)
			return newError(ErrCodeBackupFailed, "backup current binary", err)
		}
	}

	s.mu.RLock()
	release := s.latest
	s.mu.RUnlock()

	if err := s.source.UpdateTo(ctx, release, exe); err != nil {
		s.fail(err)
		s.rollbackAfterFailure()
		return newError(ErrCodeApplyFailed, "install release", err)
	}

	s.transition(StateRestarting)
	s.logger.Info("Update installed, restarting", "version", release.Version())
	s.scheduleRestart()
	return nil
}

func (s *service) Rollback(_ context.Context) error {
	if !s.enabled {
		return newError(ErrCodeDisabled, s.disabledReason, nil)
	}
	if s.backups == nil {
		return newError(ErrCodeNoBackup, errNoBackup.Error(), nil)
	}
	if err := s.backups.restore(); err != nil {
		if errors.Is(err, errNoBackup) {
			return newError(ErrCodeNoBackup, err.Error(), nil)
		}
		return newError(ErrCodeRollbackFailed, "restore backup", err)
	}

	s.transition(StateRolledBack)
	s.logger.Info("Rollback complete, restarting")
	s.scheduleRestart()
	return nil
}

func (s *service) GetStatus(_ context.Context) *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &Status{
		State:          s.state,
		CurrentVersion: version.Version,
		LastChecked:    s.lastChecked,
	}
	if s.latest != nil {
		st.TargetVersion = s.latest.Version()
	}
	if s.lastError != nil {
		st.Error = s.lastError.Error()
	}
	if s.backups != nil {
		st.BackupVersion, st.BackupAvailable = s.backups.version()
	}
	return st
}

// transition moves to next when the current state is one of from, or
// unconditionally when from is empty.
func (s *service) transition(next State, from ...State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(from) > 0 && !slices.Contains(from, s.state) {
		return false
	}
	s.logger.Debug("Update state", "from", s.state, "to", next)
	s.state = next
	s.lastError = nil
	return true
}

func (s *service) currentState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *service) fail(err error) {
	s.mu.Lock()
	s.state = StateError
	s.lastError = err
	s.mu.Unlock()
}

func (s *service) rollbackAfterFailure() {
	if s.backups == nil {
		return
	}
	if err := s.backups.restore(); err != nil {
		s.logger.Error("Automatic rollback failed", "error", err)
		return
	}
	s.logger.Info("Previous binary restored after failed update")
}

// scheduleRestart gives the HTTP response time to reach the client.
func (s *service) scheduleRestart() {
	time.AfterFunc(restartDelay, s.restart)
}

func (s *service) signalRestart() {
	s.logger.Info("Sending SIGTERM to trigger restart")
	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		s.logger.Error("SIGTERM failed", "error", err)
	}
}
