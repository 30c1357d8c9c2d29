// Package config reads and writes the dms TOML configuration.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"dms-go/internal/dms"
)

// DefaultMaxUploadSize is the spool limit when none is configured (64 MiB).
const DefaultMaxUploadSize int64 = 64 << 20

// Config represents the main configuration for dms.
type Config struct {
	InstanceID string           `toml:"instance_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Actor      ActorConfig      `toml:"actor"`
	Database   DatabaseConfig   `toml:"database"`
	Blob       BlobConfig       `toml:"blob"`
	Encryption EncryptionConfig `toml:"encryption"`
	Spool      SpoolConfig      `toml:"spool"`
	Analysis   AnalysisConfig   `toml:"analysis"`
	Import     ImportConfig     `toml:"import"`
}

// ActorConfig identifies the actor commands run as.
type ActorConfig struct {
	ID    string `toml:"id"`
	Email string `toml:"email,omitempty"`
	Name  string `toml:"name,omitempty"`
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// BlobConfig represents configuration for the blob store.
// The Type field determines which other fields are relevant.
type BlobConfig struct {
	Type          string `toml:"type"` // "memory", "filesystem" or "s3"
	Name          string `toml:"name"`
	PublicBaseURL string `toml:"public_base_url,omitempty"`
	Encrypt       bool   `toml:"encrypt,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // S3-compatible services; enables path-style addressing

	// Static credentials. When empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used when Blob.Encrypt is set.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// SpoolConfig represents configuration for upload spooling.
type SpoolConfig struct {
	Type     string `toml:"type"`                // "memory" or "filesystem"
	SpoolDir string `toml:"spool_dir,omitempty"` // only used for type=filesystem
	MaxSize  int64  `toml:"max_size"`            // max upload size in bytes, defaults to 64 MiB
}

// AnalysisConfig points at the external document analysis service.
// An empty BaseURL disables analysis.
type AnalysisConfig struct {
	BaseURL    string   `toml:"base_url,omitempty"`
	Timeout    Duration `toml:"timeout,omitempty"`     // per request
	MaxElapsed Duration `toml:"max_elapsed,omitempty"` // across retries
}

// ImportConfig holds settings for bulk import from a local directory.
type ImportConfig struct {
	Ignore []string `toml:"ignore"`
}

// Duration is a time.Duration written as a string such as "30s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// NewConfig creates a Config with local defaults rooted at baseDir: a SQLite
// database, a filesystem blob store and a filesystem spool.
func NewConfig(instanceID, baseDir string) *Config {
	return &Config{
		InstanceID: instanceID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Blob: BlobConfig{
			Type:   "filesystem",
			Name:   "local",
			FSRoot: filepath.Join(baseDir, "blobs"),
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "dms.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "dms.key"),
		},
		Spool: SpoolConfig{
			Type:     "filesystem",
			SpoolDir: filepath.Join(baseDir, "spool"),
			MaxSize:  DefaultMaxUploadSize,
		},
		Analysis: AnalysisConfig{
			Timeout:    Duration{30 * time.Second},
			MaxElapsed: Duration{2 * time.Minute},
		},
		Import: ImportConfig{
			Ignore: []string{".git", ".DS_Store", "*.tmp"},
		},
	}
}

// Validate checks the fields every command relies on.
func (c *Config) Validate() error {
	if c.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if c.Actor.ID == "" {
		return fmt.Errorf("actor.id is required")
	}
	if err := dms.ValidateActorID(c.Actor.ID); err != nil {
		return fmt.Errorf("actor.id: %w", err)
	}
	if c.Database.Type == "" {
		return fmt.Errorf("database.type is required")
	}
	if c.Blob.Type == "" {
		return fmt.Errorf("blob.type is required")
	}
	if c.Spool.MaxSize < 0 {
		return fmt.Errorf("spool.max_size must not be negative")
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes a new config file. An existing file is never overwritten.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
