package updater

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	backupFile     = "ezvizbridge.backup"
	backupInfoFile = "backup.json"
)

var errNoBackup = errors.New("no backup available")

type backupInfo struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	ExecPath  string    `json:"exec_path"`
}

// backups keeps a single copy of the binary that was replaced last.
type backups struct {
	mu     sync.RWMutex
	dir    string
	info   *backupInfo
	logger *slog.Logger
}

func defaultBackupDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home directory: %w", err)
	}
	return filepath.Join(home, ".cache", "ezvizbridge", "backup"), nil
}

func newBackups(dir string, logger *slog.Logger) (*backups, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	b := &backups{dir: dir, logger: logger}
	b.load()
	return b, nil
}

func (b *backups) load() {
	data, err := os.ReadFile(filepath.Join(b.dir, backupInfoFile))
	if err != nil {
		return
	}
	var info backupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		b.logger.Warn("Ignoring unreadable backup info", "error", err)
		return
	}
	if _, err := os.Stat(filepath.Join(b.dir, backupFile)); err != nil {
		b.logger.Warn("Backup binary missing", "dir", b.dir)
		return
	}

	b.mu.Lock()
	b.info = &info
	b.mu.Unlock()
}

// save copies execPath into the backup directory, tagged with version.
func (b *backups) save(execPath, version string) error {
	if err := copyFile(execPath, filepath.Join(b.dir, backupFile)); err != nil {
		return err
	}

	info := backupInfo{Version: version, CreatedAt: time.Now(), ExecPath: execPath}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(b.dir, backupInfoFile), data, 0o644); err != nil {
		return fmt.Errorf("write backup info: %w", err)
	}

	b.mu.Lock()
	b.info = &info
	b.mu.Unlock()
	b.logger.Info("Backup created", "version", version)
	return nil
}

// restore copies the backup over the binary it was taken from.
func (b *backups) restore() error {
	b.mu.RLock()
	info := b.info
	b.mu.RUnlock()
	if info == nil {
		return errNoBackup
	}

	if err := copyFile(filepath.Join(b.dir, backupFile), info.ExecPath); err != nil {
		return err
	}
	b.logger.Info("Backup restored", "version", info.Version)
	return nil
}

func (b *backups) version() (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.info == nil {
		return "", false
	}
	return b.info.Version, true
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("open %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}
