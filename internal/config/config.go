package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration sourced from environment variables.
// Decision policy lives in a separate hot-reloadable file (see Snapshot);
// everything here is fixed for the lifetime of the process.
type Config struct {
	Environment  string
	HTTPPort     string
	DataDir      string
	DatabasePath string

	// DecisionConfigPath is the YAML file holding the decision policy.
	DecisionConfigPath string

	// Hook commands per platform; the active one is chosen by the
	// snapshot's hook selector.
	PosixHookCommand   string
	WindowsHookCommand string
	HookTimeout        time.Duration

	// Workers is the number of decision workers events are partitioned
	// across by source hash.
	Workers int

	// EvictAfter is how long a source may stay idle before the
	// housekeeping sweep drops its state.
	EvictAfter time.Duration
	// RecordRetention is how long persisted action records are kept.
	RecordRetention time.Duration
	// SweepSchedule is the cron spec for the housekeeping job.
	SweepSchedule string

	JWTSecret     string
	AdminEmail    string
	AdminPassword string

	// NotifyURLs are shoutrrr service URLs notified on block actions.
	NotifyURLs []string
}

// Load reads env vars and falls back to defaults so the daemon can boot with
// zero configuration (in dry-run, nothing needs to be set).
func Load() (Config, error) {
	cfg := Config{
		Environment:        getEnv("GUARDD_ENV", "development"),
		HTTPPort:           getEnv("GUARDD_HTTP_PORT", "8787"),
		DataDir:            getEnv("GUARDD_DATA_DIR", "data"),
		DatabasePath:       getEnv("GUARDD_DB_PATH", filepath.Join("data", "guardd.db")),
		DecisionConfigPath: getEnv("GUARDD_DECISION_CONFIG", filepath.Join("configs", "guard.yaml")),
		PosixHookCommand:   getEnv("GUARDD_POSIX_HOOK", filepath.Join("scripts", "block_ip.sh")),
		WindowsHookCommand: getEnv("GUARDD_WINDOWS_HOOK", filepath.Join("scripts", "block_ip.ps1")),
		HookTimeout:        getDuration("GUARDD_HOOK_TIMEOUT", 10*time.Second),
		Workers:            getInt("GUARDD_WORKERS", 4),
		EvictAfter:         getDuration("GUARDD_EVICT_AFTER", time.Hour),
		RecordRetention:    getDuration("GUARDD_RECORD_RETENTION", 30*24*time.Hour),
		SweepSchedule:      getEnv("GUARDD_SWEEP_SCHEDULE", "@every 5m"),
		JWTSecret:          getEnv("GUARDD_JWT_SECRET", ""),
		AdminEmail:         getEnv("GUARDD_ADMIN_EMAIL", ""),
		AdminPassword:      getEnv("GUARDD_ADMIN_PASSWORD", ""),
		NotifyURLs:         splitList(os.Getenv("GUARDD_NOTIFY_URLS")),
	}

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}

	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}

	return fallback
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(val, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
