package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string // ICAM_DATABASE_URL (default sqlite under the state dir)
	WSAddr      string // ICAM_WS_ADDR (default "0.0.0.0:8096")
	HealthAddr  string // ICAM_HEALTH_ADDR (optional, empty = no health server)
	LogLevel    slog.Level

	// Bus sizing
	BusCapacity       int // ICAM_BUS_CAPACITY (default 10)
	FrameQueue        int // ICAM_FRAME_QUEUE (default 10)
	HandoffCapacity   int // ICAM_HANDOFF_CAPACITY (default 4)
	RestartPolicy     string
	RestartBackoff    time.Duration
	CameraInterval    time.Duration // ICAM_CAMERA_INTERVAL (default 100ms)
	Detector          string        // ICAM_DETECTOR: "none" or "motion" (default "motion")
	MotionThreshold   float64       // ICAM_MOTION_THRESHOLD (default 0.002)
	NATSURL           string        // ICAM_NATS_URL (optional, empty = no mirror)
	NATSPrefix        string        // ICAM_NATS_PREFIX (default "insectcam")
	ArchiveDir        string        // ICAM_ARCHIVE_DIR (enables the local archive when set)
	ArchiveS3Bucket   string        // ICAM_ARCHIVE_S3_BUCKET (enables S3 when set)
	ArchiveS3Endpoint string        // ICAM_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Region   string        // ICAM_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Prefix   string        // ICAM_ARCHIVE_S3_PREFIX (default "sessions/")
}

// StateDir is where the appliance keeps its database and CLI remotes:
// $XDG_STATE_HOME/insectcam, falling back to ~/.local/state/insectcam.
func StateDir() string {
	if d := os.Getenv("XDG_STATE_HOME"); d != "" {
		return filepath.Join(d, "insectcam")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "insectcam")
	}
	return filepath.Join(home, ".local", "state", "insectcam")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:       envOrDefault("ICAM_DATABASE_URL", "sqlite://"+filepath.Join(StateDir(), "insectcam.db")),
		WSAddr:            envOrDefault("ICAM_WS_ADDR", "0.0.0.0:8096"),
		HealthAddr:        os.Getenv("ICAM_HEALTH_ADDR"),
		RestartPolicy:     envOrDefault("ICAM_RESTART_POLICY", "exit"),
		Detector:          envOrDefault("ICAM_DETECTOR", "motion"),
		NATSURL:           os.Getenv("ICAM_NATS_URL"),
		NATSPrefix:        envOrDefault("ICAM_NATS_PREFIX", "insectcam"),
		ArchiveDir:        os.Getenv("ICAM_ARCHIVE_DIR"),
		ArchiveS3Bucket:   os.Getenv("ICAM_ARCHIVE_S3_BUCKET"),
		ArchiveS3Endpoint: os.Getenv("ICAM_ARCHIVE_S3_ENDPOINT"),
		ArchiveS3Region:   envOrDefault("ICAM_ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Prefix:   envOrDefault("ICAM_ARCHIVE_S3_PREFIX", "sessions/"),
	}

	var err error
	if c.LogLevel, err = parseLevel(envOrDefault("ICAM_LOG_LEVEL", "debug")); err != nil {
		return nil, fmt.Errorf("ICAM_LOG_LEVEL: %w", err)
	}
	for _, v := range []struct {
		key      string
		fallback string
		dst      *int
	}{
		{"ICAM_BUS_CAPACITY", "10", &c.BusCapacity},
		{"ICAM_FRAME_QUEUE", "10", &c.FrameQueue},
		{"ICAM_HANDOFF_CAPACITY", "4", &c.HandoffCapacity},
	} {
		n, err := strconv.Atoi(envOrDefault(v.key, v.fallback))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", v.key, err)
		}
		if n < 1 {
			return nil, fmt.Errorf("%s: must be at least 1, got %d", v.key, n)
		}
		*v.dst = n
	}
	for _, v := range []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"ICAM_RESTART_BACKOFF", "1s", &c.RestartBackoff},
		{"ICAM_CAMERA_INTERVAL", "100ms", &c.CameraInterval},
	} {
		d, err := time.ParseDuration(envOrDefault(v.key, v.fallback))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", v.key, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("%s: must be positive, got %s", v.key, d)
		}
		*v.dst = d
	}

	switch c.Detector {
	case "none", "motion":
	default:
		return nil, fmt.Errorf("ICAM_DETECTOR: unknown detector %q (must be none or motion)", c.Detector)
	}
	if c.MotionThreshold, err = strconv.ParseFloat(envOrDefault("ICAM_MOTION_THRESHOLD", "0.002"), 64); err != nil {
		return nil, fmt.Errorf("ICAM_MOTION_THRESHOLD: %w", err)
	}

	return c, nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(strings.TrimSpace(s)))
	return l, err
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
