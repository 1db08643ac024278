package scheduler

import (
	"bufio"
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Job log lines use day-first timestamps; the report log keeps its own layout.
const logTimestampLayout = "02/01/2006-15:04:05"

func appendLines(path string, lines ...string) error {
	if len(lines) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// writeJobLog appends lines to a job log. Write failures never fail the job.
func (s *Scheduler) writeJobLog(ctx context.Context, path string, lines ...string) {
	if err := appendLines(path, lines...); err != nil {
		s.logger(ctx).Warn("job log write failed", zap.String("path", path), zap.Error(err))
	}
}
