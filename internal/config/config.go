package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config represents the main configuration for docwatch.
type Config struct {
	WatchDir   string           `toml:"watch_dir" env:"DOCWATCH_WATCH_DIR,WATCH_FOLDER" env-description:"Directory to watch for documents"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	LogLevel   string           `toml:"log_level" env:"DOCWATCH_LOG_LEVEL" env-description:"debug, info, warn or error"`
	Database   DatabaseConfig   `toml:"database"`
	Artifacts  ArtifactsConfig  `toml:"artifacts"`
	Summarizer SummarizerConfig `toml:"summarizer"`
	Intake     IntakeConfig     `toml:"intake"`
	Catalog    CatalogConfig    `toml:"catalog"`
	Reconcile  ReconcileConfig  `toml:"reconcile"`
	Watcher    WatcherConfig    `toml:"watcher"`
	Filesystem FilesystemConfig `toml:"filesystem"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// DatabaseConfig represents configuration for the catalog database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ArtifactsConfig selects where thumbnails and previews are stored.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ArtifactsConfig struct {
	Type string `toml:"type"` // "filesystem", "memory" or "s3"

	// Filesystem-specific fields (only used when Type == "filesystem")
	Dir string `toml:"dir,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // for S3-compatible services

	// Static credentials; when empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty" env:"DOCWATCH_S3_ACCESS_KEY_ID" env-description:"Access key for the S3 artifact store"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty" env:"DOCWATCH_S3_SECRET_ACCESS_KEY" env-description:"Secret key for the S3 artifact store"`
}

// SummarizerConfig selects the enrichment backend.
type SummarizerConfig struct {
	Type       string   `toml:"type"` // "openai", "anthropic" or "none"
	Model      string   `toml:"model,omitempty"`
	APIKey     string   `toml:"api_key,omitempty" env:"DOCWATCH_SUMMARIZER_API_KEY,OPENAI_API_KEY" env-description:"API key for the summarizer"`
	BaseURL    string   `toml:"base_url,omitempty"`
	ChunkChars int      `toml:"chunk_chars"` // text prefix sent for enrichment
	Timeout    Duration `toml:"timeout"`
}

// IntakeConfig tunes the intake pipeline.
type IntakeConfig struct {
	Extensions      []string `toml:"extensions"` // allow-list; empty means every supported type
	LockAttempts    int      `toml:"lock_attempts"`
	LockBackoff     Duration `toml:"lock_backoff"`
	RenameAttempts  int      `toml:"rename_attempts"`
	Workers         int      `toml:"workers"`
	DuplicatePolicy string   `toml:"duplicate_policy" env:"DOCWATCH_DUPLICATE_POLICY" env-description:"skip or conflict"`
	OCR             bool     `toml:"ocr"` // OCR scanned PDFs with tesseract when they carry no text layer
}

// CatalogConfig holds catalog lifecycle settings.
type CatalogConfig struct {
	RemovalPolicy string `toml:"removal_policy" env:"DOCWATCH_REMOVAL_POLICY" env-description:"archive or delete"`
}

// ReconcileConfig holds reconcile scheduling. A zero interval reconciles at startup only.
type ReconcileConfig struct {
	Interval Duration `toml:"interval"`
}

// WatcherConfig tunes the filesystem watcher.
type WatcherConfig struct {
	Debounce Duration `toml:"debounce"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// EncryptionConfig holds paths to the age key pair used for catalog snapshots.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "none" for plaintext snapshots
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// Duration is a time.Duration written as a string such as "1s" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	d.Duration = v
	return nil
}

// NewConfig creates a Config for watchDir with every setting at its default.
func NewConfig(baseDir, watchDir string) *Config {
	cfg := &Config{WatchDir: watchDir, BaseDir: baseDir}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field. Paths derive from BaseDir.
func (c *Config) ApplyDefaults() {
	setDefault(&c.LogDir, filepath.Join(c.BaseDir, "log"))
	setDefault(&c.LogLevel, "info")

	setDefault(&c.Database.Type, "sqlite")
	if c.Database.Type == "sqlite" {
		setDefault(&c.Database.DataDir, filepath.Join(c.BaseDir, "data"))
	}

	setDefault(&c.Artifacts.Type, "filesystem")
	if c.Artifacts.Type == "filesystem" {
		setDefault(&c.Artifacts.Dir, filepath.Join(c.BaseDir, "thumbnails"))
	}

	setDefault(&c.Summarizer.Type, "none")
	switch c.Summarizer.Type {
	case "openai":
		setDefault(&c.Summarizer.Model, "gpt-4o-mini")
	case "anthropic":
		setDefault(&c.Summarizer.Model, "claude-3-5-haiku-latest")
	}
	if c.Summarizer.ChunkChars <= 0 {
		c.Summarizer.ChunkChars = 12000
	}
	if c.Summarizer.Timeout.Duration <= 0 {
		c.Summarizer.Timeout.Duration = 60 * time.Second
	}

	if c.Intake.LockAttempts <= 0 {
		c.Intake.LockAttempts = 5
	}
	if c.Intake.LockBackoff.Duration <= 0 {
		c.Intake.LockBackoff.Duration = time.Second
	}
	if c.Intake.RenameAttempts <= 0 {
		c.Intake.RenameAttempts = 5
	}
	if c.Intake.Workers <= 0 {
		c.Intake.Workers = 4
	}
	setDefault(&c.Intake.DuplicatePolicy, "skip")
	setDefault(&c.Catalog.RemovalPolicy, "archive")

	if c.Watcher.Debounce.Duration <= 0 {
		c.Watcher.Debounce.Duration = 500 * time.Millisecond
	}

	setDefault(&c.Encryption.PublicKeyPath, filepath.Join(c.BaseDir, "keys", "docwatch.pub"))
	setDefault(&c.Encryption.PrivateKeyPath, filepath.Join(c.BaseDir, "keys", "docwatch.key"))
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if c.WatchDir == "" {
		errs = append(errs, errors.New("watch_dir is required"))
	} else if !filepath.IsAbs(c.WatchDir) {
		errs = append(errs, fmt.Errorf("watch_dir must be absolute: %s", c.WatchDir))
	}
	if !oneOf(c.LogLevel, "debug", "info", "warn", "error") {
		errs = append(errs, fmt.Errorf("unknown log_level: %q", c.LogLevel))
	}
	if !oneOf(c.Intake.DuplicatePolicy, "skip", "conflict") {
		errs = append(errs, fmt.Errorf("unknown intake.duplicate_policy: %q", c.Intake.DuplicatePolicy))
	}
	if !oneOf(c.Catalog.RemovalPolicy, "archive", "delete") {
		errs = append(errs, fmt.Errorf("unknown catalog.removal_policy: %q", c.Catalog.RemovalPolicy))
	}
	if c.Reconcile.Interval.Duration < 0 {
		errs = append(errs, errors.New("reconcile.interval must not be negative"))
	}
	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
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

// Load reads the config file, then a .env file in the working directory if
// one exists, then environment overrides. Defaults fill whatever is left
// unset and the result is validated.
func Load(path string) (*Config, error) {
	cfg, err := ReadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv adds variables from a dotenv file to the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides config fields from their env-tagged environment variables.
func ApplyEnv(cfg *Config) error {
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("reading environment overrides: %w", err)
	}
	return nil
}

// EnvDescription lists the environment variables that override the config.
func EnvDescription() (string, error) {
	return cleanenv.GetDescription(&Config{}, nil)
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
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

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
