package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	backupPrefix     = "autoflow-"
	backupSuffix     = ".db"
	backupTimeLayout = "20060102T150405Z"
)

// TickBackup snapshots the database into BackupDir and prunes old
// snapshots beyond BackupRetain. Failures are logged only.
func (s *Scheduler) TickBackup(ctx context.Context) {
	if s.config.BackupDir == "" {
		return
	}
	if !s.backupTick.TryLock() {
		s.logger.WarnContext(ctx, "previous backup still running, skipping")
		return
	}
	defer s.backupTick.Unlock()

	dest := filepath.Join(s.config.BackupDir, backupPrefix+s.now().Format(backupTimeLayout)+backupSuffix)
	if err := s.store.Backup(ctx, dest); err != nil {
		s.logger.ErrorContext(ctx, "backup failed", "path", dest, "error", err)
		return
	}
	s.logger.InfoContext(ctx, "backup written", "path", dest)

	if err := pruneBackups(s.config.BackupDir, s.config.BackupRetain); err != nil {
		s.logger.WarnContext(ctx, "failed to prune old backups", "error", err)
	}
}

// pruneBackups removes all but the newest keep snapshots in dir. Snapshot
// names embed a sortable UTC timestamp.
func pruneBackups(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, backupPrefix) && strings.HasSuffix(n, backupSuffix) {
			names = append(names, n)
		}
	}
	if len(names) <= keep {
		return nil
	}
	sort.Strings(names)
	var firstErr error
	for _, n := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(dir, n)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
