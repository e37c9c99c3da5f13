package notify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dopplertower/weather-agent/internal/agent"
)

// FileAlertLog appends dispatched warnings to one log file per user under a
// fixed directory.
type FileAlertLog struct {
	dir string
}

func NewFileAlertLog(dir string) *FileAlertLog {
	return &FileAlertLog{dir: dir}
}

// Append writes a timestamped block with the location and every warning
// message. The file is created on first use.
func (l *FileAlertLog) Append(userID, location string, at time.Time, warnings []agent.Warning) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create alert log dir: %w", err)
	}

	f, err := os.OpenFile(l.path(userID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open alert log: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	fmt.Fprintf(&b, "\n=== %s ===\n", at.Format(time.RFC3339))
	fmt.Fprintf(&b, "Location: %s\n", location)
	for _, w := range warnings {
		fmt.Fprintf(&b, "%s [source: %s]\n", w.Message, w.Source)
	}

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("write alert log: %w", err)
	}
	return nil
}

// path maps a user id to a filesystem-safe log file name. Email-style ids
// are common, so "@" becomes "_at_".
func (l *FileAlertLog) path(userID string) string {
	safe := strings.ReplaceAll(userID, "@", "_at_")
	safe = strings.ReplaceAll(safe, string(os.PathSeparator), "_")
	return filepath.Join(l.dir, safe+".log")
}
