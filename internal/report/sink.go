package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jsilvela/botwatch/internal/database"
)

// Sink delivers a finished weekly report somewhere durable. The
// aggregation marker only advances once Publish returns nil.
type Sink interface {
	Publish(periodStart time.Time, bodyMarkdown string) error
}

// FileSink writes reports as markdown files named by period start date.
type FileSink struct {
	dir string
}

// NewFileSink creates a sink writing under <dataDir>/reports.
func NewFileSink(dataDir string) *FileSink {
	return &FileSink{dir: filepath.Join(dataDir, "reports")}
}

// Publish writes the report to <dir>/<YYYY-MM-DD>.md.
func (s *FileSink) Publish(periodStart time.Time, bodyMarkdown string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating reports dir: %w", err)
	}
	path := filepath.Join(s.dir, database.PeriodID(periodStart)+".md")
	if err := os.WriteFile(path, []byte(bodyMarkdown), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// Path returns where a period's report file lives.
func (s *FileSink) Path(periodStart time.Time) string {
	return filepath.Join(s.dir, database.PeriodID(periodStart)+".md")
}
