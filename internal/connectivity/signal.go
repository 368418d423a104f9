package connectivity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hpungsan/snapfood/internal/logging"
)

// ParseSignal reads the content of a connectivity file.
func ParseSignal(content string) (online bool, err error) {
	switch strings.ToLower(strings.TrimSpace(content)) {
	case "online", "up", "true", "1":
		return true, nil
	case "offline", "down", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("unrecognized connectivity signal %q", strings.TrimSpace(content))
}

// ReadSignal reads path. ok is false when the file does not exist.
func ReadSignal(path string) (online, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, false, nil
		}
		return false, false, err
	}
	online, err = ParseSignal(string(data))
	if err != nil {
		return false, false, err
	}
	return online, true, nil
}

// WriteSignal atomically replaces path with "online" or "offline", so a
// watching process never reads a half-written file.
func WriteSignal(path string, online bool) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".connectivity-*")
	if err != nil {
		return err
	}
	content := "offline\n"
	if online {
		content = "online\n"
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// FileSignal feeds a Monitor from a file holding "online" or "offline".
// The parent directory is watched so atomic replacements are seen.
type FileSignal struct {
	path    string
	monitor *Monitor
	log     *zap.Logger
}

// NewFileSignal creates a signal for path.
func NewFileSignal(path string, monitor *Monitor, log *zap.Logger) *FileSignal {
	return &FileSignal{
		path:    filepath.Clean(path),
		monitor: monitor,
		log:     logging.OrNop(log).Named("connectivity.file"),
	}
}

// Run applies the file's current content, then every change until ctx is
// done. A missing or unreadable file leaves the monitor state unchanged.
func (s *FileSignal) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create connectivity dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	s.log.Info("watching", zap.String("path", s.path))

	s.apply()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				s.apply()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (s *FileSignal) apply() {
	online, ok, err := ReadSignal(s.path)
	if err != nil {
		s.log.Warn("ignoring connectivity file", zap.String("path", s.path), zap.Error(err))
		return
	}
	if ok {
		s.monitor.Set(online)
	}
}
