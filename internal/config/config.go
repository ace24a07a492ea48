// Package config loads and validates objectmount's configuration:
// backend selection, cache variant and sizing, mount options, and the
// ambient logging/metrics/resilience settings every component reads
// at startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration is the complete top-level configuration tree.
type Configuration struct {
	Global  GlobalConfig  `yaml:"global"`
	Mount   MountConfig   `yaml:"mount"`
	Cache   CacheConfig   `yaml:"cache"`
	Backend BackendConfig `yaml:"backend"`
	Network NetworkConfig `yaml:"network"`
	Status  StatusConfig  `yaml:"status"`
}

// GlobalConfig holds process-wide settings.
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
	HealthPort  int    `yaml:"health_port"`
}

// MountConfig holds the FUSE frontend's kernel-visible attributes.
type MountConfig struct {
	MountPoint  string        `yaml:"mount_point"`
	ReadOnly    bool          `yaml:"read_only"`
	AllowOther  bool          `yaml:"allow_other"`
	DefaultUID  uint32        `yaml:"default_uid"`
	DefaultGID  uint32        `yaml:"default_gid"`
	DefaultMode uint32        `yaml:"default_mode"`
	AttrTTL     time.Duration `yaml:"attr_ttl"`
	EntryTTL    time.Duration `yaml:"entry_ttl"`
	Binding     string        `yaml:"binding"` // "gofuse" or "cgofuse"
}

// CacheConfig controls the write-back cache layer.
type CacheConfig struct {
	// Variant selects "memory", "filesystem", or "none" (every call
	// passes straight through to the backend; writes are never
	// buffered, so a backend outage surfaces immediately instead of
	// being absorbed).
	Variant           string        `yaml:"variant"`
	MaxBytes          uint64        `yaml:"max_bytes"`
	MaxEntries        int           `yaml:"max_entries"`
	MetadataTTL       time.Duration `yaml:"metadata_ttl"`
	NegativeTTL       time.Duration `yaml:"negative_ttl"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	FilesystemDir     string        `yaml:"filesystem_dir"`
	ExcludePatterns   []string      `yaml:"exclude_patterns"`
}

// BackendConfig selects and configures the connector backend.
type BackendConfig struct {
	// Kind selects "s3" or "drive".
	Kind  string      `yaml:"kind"`
	S3    S3Config    `yaml:"s3"`
	Drive DriveConfig `yaml:"drive"`
}

// S3Config configures the S3 connector.
type S3Config struct {
	Bucket                      string `yaml:"bucket"`
	Region                      string `yaml:"region"`
	Endpoint                    string `yaml:"endpoint"`
	ForcePathStyle              bool   `yaml:"force_path_style"`
	UseAccelerate               bool   `yaml:"use_accelerate"`
	UseDualStack                bool   `yaml:"use_dual_stack"`
	EnableCargoShipOptimization bool   `yaml:"enable_cargoship_optimization"`
}

// DriveConfig configures the Drive connector.
type DriveConfig struct {
	RootFolderID        string `yaml:"root_folder_id"`
	CredentialsFilePath string `yaml:"credentials_file_path"`
}

// NetworkConfig holds circuit-breaker tuning for backend calls made by
// the reconciler and the FUSE frontend. There's no separate retry
// knob here: the reconciler's fixed interval and the breaker's
// open/half-open cycle are the only retry pacing in this repo.
type NetworkConfig struct {
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig controls when backend calls stop being
// attempted and are left to accumulate locally instead.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// StatusConfig controls the virtual status directory injected at the
// mount root by internal/status.
type StatusConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Prefix        string `yaml:"prefix"`
	MaxLogEntries int    `yaml:"max_log_entries"`
}

// NewDefault returns a configuration with sensible defaults for a
// local S3-backed, memory-cached mount.
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "info",
			LogFormat:   "text",
			MetricsPort: 9090,
			HealthPort: 9091,
		},
		Mount: MountConfig{
			MountPoint:  "/mnt/objectmount",
			DefaultUID:  0,
			DefaultGID:  0,
			DefaultMode: 0644,
			AttrTTL:     time.Second,
			EntryTTL:    time.Second,
			Binding:     "gofuse",
		},
		Cache: CacheConfig{
			Variant:           "memory",
			MaxBytes:          2 << 30,
			MaxEntries:        100000,
			MetadataTTL:       5 * time.Second,
			NegativeTTL:       time.Second,
			ReconcileInterval: 5 * time.Second,
			FilesystemDir:     "/var/cache/objectmount",
		},
		Backend: BackendConfig{
			Kind: "s3",
			S3: S3Config{
				Region:                      "us-east-1",
				EnableCargoShipOptimization: true,
			},
		},
		Network: NetworkConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				OpenTimeout:      60 * time.Second,
			},
		},
		Status: StatusConfig{
			Enabled:       true,
			Prefix:        ".objectmount",
			MaxLogEntries: 100,
		},
	}
}

// LoadFromFile parses a YAML file into c, overwriting defaults for any
// key present in the file.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// LoadFromEnv applies OBJECTMOUNT_* environment overrides, taking
// precedence over whatever LoadFromFile set.
func (c *Configuration) LoadFromEnv() error {
	if v := os.Getenv("OBJECTMOUNT_LOG_LEVEL"); v != "" {
		c.Global.LogLevel = v
	}
	if v := os.Getenv("OBJECTMOUNT_LOG_FORMAT"); v != "" {
		c.Global.LogFormat = v
	}
	if v := os.Getenv("OBJECTMOUNT_METRICS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Global.MetricsPort = p
		}
	}
	if v := os.Getenv("OBJECTMOUNT_HEALTH_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Global.HealthPort = p
		}
	}

	if v := os.Getenv("OBJECTMOUNT_MOUNT_POINT"); v != "" {
		c.Mount.MountPoint = v
	}
	if v := os.Getenv("OBJECTMOUNT_READ_ONLY"); v != "" {
		c.Mount.ReadOnly = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("OBJECTMOUNT_ALLOW_OTHER"); v != "" {
		c.Mount.AllowOther = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("OBJECTMOUNT_BINDING"); v != "" {
		c.Mount.Binding = v
	}

	if v := os.Getenv("OBJECTMOUNT_CACHE_VARIANT"); v != "" {
		c.Cache.Variant = v
	}
	if v := os.Getenv("OBJECTMOUNT_CACHE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Cache.MaxBytes = n
		}
	}
	if v := os.Getenv("OBJECTMOUNT_CACHE_DIR"); v != "" {
		c.Cache.FilesystemDir = v
	}
	if v := os.Getenv("OBJECTMOUNT_RECONCILE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Cache.ReconcileInterval = d
		}
	}

	if v := os.Getenv("OBJECTMOUNT_BACKEND_KIND"); v != "" {
		c.Backend.Kind = v
	}
	if v := os.Getenv("OBJECTMOUNT_S3_BUCKET"); v != "" {
		c.Backend.S3.Bucket = v
	}
	if v := os.Getenv("OBJECTMOUNT_S3_REGION"); v != "" {
		c.Backend.S3.Region = v
	}
	if v := os.Getenv("OBJECTMOUNT_S3_ENDPOINT"); v != "" {
		c.Backend.S3.Endpoint = v
	}
	if v := os.Getenv("OBJECTMOUNT_DRIVE_ROOT_FOLDER_ID"); v != "" {
		c.Backend.Drive.RootFolderID = v
	}
	if v := os.Getenv("OBJECTMOUNT_DRIVE_CREDENTIALS_FILE"); v != "" {
		c.Backend.Drive.CredentialsFilePath = v
	}

	if v := os.Getenv("OBJECTMOUNT_CIRCUIT_BREAKER_ENABLED"); v != "" {
		c.Network.CircuitBreaker.Enabled = strings.EqualFold(v, "true")
	}

	if v := os.Getenv("OBJECTMOUNT_STATUS_PREFIX"); v != "" {
		c.Status.Prefix = v
	}

	return nil
}

// SaveToFile writes c as YAML to filename, creating parent directories
// as needed.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

var validLogLevels = []string{"debug", "info", "warn", "error"}
var validCacheVariants = []string{"memory", "filesystem", "none"}
var validBackendKinds = []string{"s3", "drive"}
var validBindings = []string{"gofuse", "cgofuse"}

func contains(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// Validate rejects configurations the rest of the system could not
// act on: unknown enum values, non-positive sizes, and a missing
// mount point.
func (c *Configuration) Validate() error {
	if !contains(validLogLevels, c.Global.LogLevel) {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)", c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.Global.MetricsPort == c.Global.HealthPort {
		return fmt.Errorf("metrics_port and health_port cannot be the same")
	}
	if c.Mount.MountPoint == "" {
		return fmt.Errorf("mount.mount_point is required")
	}
	if !contains(validBindings, c.Mount.Binding) {
		return fmt.Errorf("invalid mount.binding: %s (must be one of: %s)", c.Mount.Binding, strings.Join(validBindings, ", "))
	}
	if !contains(validCacheVariants, c.Cache.Variant) {
		return fmt.Errorf("invalid cache.variant: %s (must be one of: %s)", c.Cache.Variant, strings.Join(validCacheVariants, ", "))
	}
	if c.Cache.Variant == "filesystem" && c.Cache.FilesystemDir == "" {
		return fmt.Errorf("cache.filesystem_dir is required when cache.variant is \"filesystem\"")
	}
	if c.Cache.Variant != "none" {
		if c.Cache.MaxBytes == 0 {
			return fmt.Errorf("cache.max_bytes must be greater than 0")
		}
		if c.Cache.ReconcileInterval <= 0 {
			return fmt.Errorf("cache.reconcile_interval must be greater than 0")
		}
	}
	if !contains(validBackendKinds, c.Backend.Kind) {
		return fmt.Errorf("invalid backend.kind: %s (must be one of: %s)", c.Backend.Kind, strings.Join(validBackendKinds, ", "))
	}
	if c.Backend.Kind == "s3" && c.Backend.S3.Bucket == "" {
		return fmt.Errorf("backend.s3.bucket is required when backend.kind is \"s3\"")
	}
	if c.Backend.Kind == "drive" && c.Backend.Drive.RootFolderID == "" {
		return fmt.Errorf("backend.drive.root_folder_id is required when backend.kind is \"drive\"")
	}
	if c.Status.Enabled && c.Status.Prefix == "" {
		return fmt.Errorf("status.prefix is required when status.enabled is true")
	}
	return nil
}
