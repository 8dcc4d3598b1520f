package sqlite

import (
	"fmt"
	"time"
)

const (
	defaultBusyTimeout = 5000
	defaultDBFile      = "journal.db"
	defaultTrimSched   = "0 * * * *"
)

// Config holds the SQLite journal module configuration.
type Config struct {
	// Path is the database file path. Defaults to {DataDir}/journal.db.
	Path string `yaml:"path"`

	// WAL enables WAL journal mode for concurrent reads. Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`

	// Retention drops journal rows older than this. Zero keeps everything.
	Retention time.Duration `yaml:"retention"`

	// TrimSchedule is the cron expression of the retention job.
	TrimSchedule string `yaml:"trim_schedule"`
}

func (c *Config) defaults() {
	if c.WAL == nil {
		t := true
		c.WAL = &t
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
	if c.TrimSchedule == "" {
		c.TrimSchedule = defaultTrimSched
	}
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

func (c *Config) validate() error {
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must be non-negative, got %d", c.BusyTimeout)
	}
	if c.Retention < 0 {
		return fmt.Errorf("sqlite: retention must be non-negative, got %s", c.Retention)
	}
	return nil
}
