package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL          = "http://127.0.0.1:7334"
	DefaultProjectID       = "stash"
	DefaultDBFileName      = ".stash.db"
	DefaultBlobDirName     = ".stash-blobs"
	DefaultOutboxFileName  = ".stash-outbox"
	DefaultUsersCollection = "users"
	DefaultFilesCollection = "files"
	DefaultBucketID        = "files"
	DefaultLogLevel        = "info"

	DefaultQuotaBytes     int64 = 2 * 1024 * 1024 * 1024
	DefaultMaxUploadBytes int64 = 512 * 1024 * 1024
	DefaultOTPTTL               = 15 * time.Minute
	DefaultSessionTTL           = 30 * 24 * time.Hour
	DefaultRequestTimeout       = 30 * time.Second
	DefaultPurgeInterval        = time.Hour

	MailModeLog  = "log"
	MailModeSMTP = "smtp"

	BlobBackendLocal = "local"
	BlobBackendS3    = "s3"

	globalFileName  = ".stash.toml"
	projectFileName = ".stash.yaml"
	dotEnvFileName  = ".env"

	configDirEnvKey = "STASH_CONFIG_DIR"
)

// ServerConfig tunes the HTTP server.
type ServerConfig struct {
	RequestTimeout time.Duration `toml:"request_timeout" yaml:"request_timeout"`
	MaxUploadBytes int64         `toml:"max_upload_bytes" yaml:"max_upload_bytes"`
	// PurgeInterval is how often expired codes and sessions are removed.
	// Zero disables the purge loop.
	PurgeInterval time.Duration `toml:"purge_interval" yaml:"purge_interval"`
}

// MailConfig selects how one-time codes are delivered.
type MailConfig struct {
	Mode         string `toml:"mode" yaml:"mode"`
	From         string `toml:"from" yaml:"from"`
	SMTPAddr     string `toml:"smtp_addr" yaml:"smtp_addr"`
	SMTPUser     string `toml:"smtp_user" yaml:"smtp_user"`
	SMTPPassword string `toml:"smtp_password" yaml:"smtp_password"`
	// Outbox is the file that receives rendered messages in log mode.
	Outbox string `toml:"outbox" yaml:"outbox"`
}

// S3Config addresses an S3 compatible object store.
type S3Config struct {
	Endpoint        string `toml:"endpoint" yaml:"endpoint"`
	Region          string `toml:"region" yaml:"region"`
	Bucket          string `toml:"bucket" yaml:"bucket"`
	AccessKeyID     string `toml:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key" yaml:"secret_access_key"`
	UsePathStyle    bool   `toml:"use_path_style" yaml:"use_path_style"`
}

// BlobConfig selects where file bytes are kept.
type BlobConfig struct {
	Backend string   `toml:"backend" yaml:"backend"`
	Dir     string   `toml:"dir" yaml:"dir"`
	S3      S3Config `toml:"s3" yaml:"s3"`
}

// LogConfig enables a rotating log file next to stderr.
type LogConfig struct {
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" yaml:"compress"`
}

// Config defines runtime configuration for stash.
type Config struct {
	APIURL          string        `toml:"api_url" yaml:"api_url"`
	PublicURL       string        `toml:"public_url" yaml:"public_url"`
	ProjectID       string        `toml:"project_id" yaml:"project_id"`
	DBPath          string        `toml:"db_path" yaml:"db_path"`
	APIKey          string        `toml:"api_key" yaml:"api_key"`
	UsersCollection string        `toml:"users_collection" yaml:"users_collection"`
	FilesCollection string        `toml:"files_collection" yaml:"files_collection"`
	BucketID        string        `toml:"bucket_id" yaml:"bucket_id"`
	QuotaBytes      int64         `toml:"quota_bytes" yaml:"quota_bytes"`
	OTPTTL          time.Duration `toml:"otp_ttl" yaml:"otp_ttl"`
	SessionTTL      time.Duration `toml:"session_ttl" yaml:"session_ttl"`
	LogLevel        string        `toml:"log_level" yaml:"log_level"`
	Server          ServerConfig  `toml:"server" yaml:"server"`
	Mail            MailConfig    `toml:"mail" yaml:"mail"`
	Blob            BlobConfig    `toml:"blob" yaml:"blob"`
	Log             LogConfig     `toml:"log" yaml:"log"`

	// Sources lists the files that were applied, in order.
	Sources []string `toml:"-" yaml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:          DefaultAPIURL,
		ProjectID:       DefaultProjectID,
		UsersCollection: DefaultUsersCollection,
		FilesCollection: DefaultFilesCollection,
		BucketID:        DefaultBucketID,
		QuotaBytes:      DefaultQuotaBytes,
		OTPTTL:          DefaultOTPTTL,
		SessionTTL:      DefaultSessionTTL,
		LogLevel:        DefaultLogLevel,
		Server: ServerConfig{
			RequestTimeout: DefaultRequestTimeout,
			MaxUploadBytes: DefaultMaxUploadBytes,
			PurgeInterval:  DefaultPurgeInterval,
		},
		Mail: MailConfig{
			Mode: MailModeLog,
			From: "Stash <no-reply@localhost>",
		},
		Blob: BlobConfig{
			Backend: BlobBackendLocal,
		},
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func loadTOMLIfExists(path string, cfg *Config) (bool, error) {
	ok, err := regularFile(path)
	if !ok || err != nil {
		return false, err
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func loadYAMLIfExists(path string, cfg *Config) (bool, error) {
	ok, err := regularFile(path)
	if !ok || err != nil {
		return false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func regularFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func configDir() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	return dir, dir != ""
}

// GlobalPath returns the path to the TOML config file written by SetKey.
func GlobalPath() (string, error) {
	if dir, ok := configDir(); ok {
		return filepath.Join(dir, globalFileName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, globalFileName), nil
}

// ProjectPath returns the path to the YAML project config file.
func ProjectPath() (string, error) {
	if dir, ok := configDir(); ok {
		return filepath.Join(dir, projectFileName), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, projectFileName), nil
}

// Load layers defaults, the global TOML file, the project YAML file, .env
// and STASH_* environment variables, later sources winning.
func Load() (*Config, error) {
	cfg := Default()

	globalPath, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	if ok, err := loadTOMLIfExists(globalPath, &cfg); err != nil {
		return nil, err
	} else if ok {
		cfg.Sources = append(cfg.Sources, globalPath)
	}

	projectPath, err := ProjectPath()
	if err != nil {
		return nil, err
	}
	if ok, err := loadYAMLIfExists(projectPath, &cfg); err != nil {
		return nil, err
	} else if ok {
		cfg.Sources = append(cfg.Sources, projectPath)
	}

	envPath := filepath.Join(filepath.Dir(projectPath), dotEnvFileName)
	if ok, _ := regularFile(envPath); ok {
		// Existing environment variables take precedence over .env.
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
		cfg.Sources = append(cfg.Sources, envPath)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cwd, _ := os.Getwd()
	if cfg.DBPath == "" && cwd != "" {
		cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
	}
	if cfg.Blob.Dir == "" && cwd != "" {
		cfg.Blob.Dir = filepath.Join(cwd, DefaultBlobDirName)
	}
	if cfg.Mail.Mode == MailModeLog && cfg.Mail.Outbox == "" && cwd != "" {
		cfg.Mail.Outbox = filepath.Join(cwd, DefaultOutboxFileName)
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = cfg.APIURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envKeys = []struct {
	env string
	key string
}{
	{"STASH_API_URL", "api_url"},
	{"STASH_PUBLIC_URL", "public_url"},
	{"STASH_PROJECT_ID", "project_id"},
	{"STASH_DB", "db_path"},
	{"STASH_API_KEY", "api_key"},
	{"STASH_USERS_COLLECTION", "users_collection"},
	{"STASH_FILES_COLLECTION", "files_collection"},
	{"STASH_BUCKET_ID", "bucket_id"},
	{"STASH_QUOTA_BYTES", "quota_bytes"},
	{"STASH_OTP_TTL", "otp_ttl"},
	{"STASH_SESSION_TTL", "session_ttl"},
	{"STASH_LOG_LEVEL", "log_level"},
	{"STASH_REQUEST_TIMEOUT", "server.request_timeout"},
	{"STASH_MAX_UPLOAD_BYTES", "server.max_upload_bytes"},
	{"STASH_MAIL_MODE", "mail.mode"},
	{"STASH_MAIL_FROM", "mail.from"},
	{"STASH_SMTP_ADDR", "mail.smtp_addr"},
	{"STASH_SMTP_USER", "mail.smtp_user"},
	{"STASH_SMTP_PASSWORD", "mail.smtp_password"},
	{"STASH_MAIL_OUTBOX", "mail.outbox"},
	{"STASH_BLOB_BACKEND", "blob.backend"},
	{"STASH_BLOB_DIR", "blob.dir"},
	{"STASH_S3_ENDPOINT", "blob.s3.endpoint"},
	{"STASH_S3_REGION", "blob.s3.region"},
	{"STASH_S3_BUCKET", "blob.s3.bucket"},
	{"STASH_S3_ACCESS_KEY_ID", "blob.s3.access_key_id"},
	{"STASH_S3_SECRET_ACCESS_KEY", "blob.s3.secret_access_key"},
	{"STASH_S3_USE_PATH_STYLE", "blob.s3.use_path_style"},
	{"STASH_LOG_FILE", "log.file"},
}

func (c *Config) applyEnv() error {
	for _, e := range envKeys {
		raw, ok := os.LookupEnv(e.env)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if err := c.Set(e.key, raw); err != nil {
			return fmt.Errorf("%s: %w", e.env, err)
		}
	}
	return nil
}

// Validate rejects unknown modes and incomplete backend settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.Mail.Mode {
	case MailModeLog:
	case MailModeSMTP:
		if c.Mail.SMTPAddr == "" {
			errs = append(errs, fmt.Errorf("mail.smtp_addr is required for smtp mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("mail.mode must be %q or %q, got %q", MailModeLog, MailModeSMTP, c.Mail.Mode))
	}
	switch c.Blob.Backend {
	case BlobBackendLocal:
	case BlobBackendS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf("blob.s3.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.backend must be %q or %q, got %q", BlobBackendLocal, BlobBackendS3, c.Blob.Backend))
	}
	if c.UsersCollection == "" || c.FilesCollection == "" || c.BucketID == "" {
		errs = append(errs, fmt.Errorf("users_collection, files_collection and bucket_id must not be empty"))
	}
	return errors.Join(errs...)
}

var allowedKeys = []string{
	"api_url",
	"public_url",
	"project_id",
	"db_path",
	"api_key",
	"users_collection",
	"files_collection",
	"bucket_id",
	"quota_bytes",
	"otp_ttl",
	"session_ttl",
	"log_level",
	"server.request_timeout",
	"server.max_upload_bytes",
	"server.purge_interval",
	"mail.mode",
	"mail.from",
	"mail.smtp_addr",
	"mail.smtp_user",
	"mail.smtp_password",
	"mail.outbox",
	"blob.backend",
	"blob.dir",
	"blob.s3.endpoint",
	"blob.s3.region",
	"blob.s3.bucket",
	"blob.s3.access_key_id",
	"blob.s3.secret_access_key",
	"blob.s3.use_path_style",
	"log.file",
	"log.max_size_mb",
	"log.max_backups",
	"log.max_age_days",
	"log.compress",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	return slices.Contains(allowedKeys, key)
}

// IsSecretKey reports keys whose values are masked when printed.
func IsSecretKey(key string) bool {
	switch key {
	case "api_key", "mail.smtp_password", "blob.s3.secret_access_key":
		return true
	default:
		return false
	}
}

func (c *Config) stringField(key string) *string {
	switch key {
	case "api_url":
		return &c.APIURL
	case "public_url":
		return &c.PublicURL
	case "project_id":
		return &c.ProjectID
	case "db_path":
		return &c.DBPath
	case "api_key":
		return &c.APIKey
	case "users_collection":
		return &c.UsersCollection
	case "files_collection":
		return &c.FilesCollection
	case "bucket_id":
		return &c.BucketID
	case "log_level":
		return &c.LogLevel
	case "mail.mode":
		return &c.Mail.Mode
	case "mail.from":
		return &c.Mail.From
	case "mail.smtp_addr":
		return &c.Mail.SMTPAddr
	case "mail.smtp_user":
		return &c.Mail.SMTPUser
	case "mail.smtp_password":
		return &c.Mail.SMTPPassword
	case "mail.outbox":
		return &c.Mail.Outbox
	case "blob.backend":
		return &c.Blob.Backend
	case "blob.dir":
		return &c.Blob.Dir
	case "blob.s3.endpoint":
		return &c.Blob.S3.Endpoint
	case "blob.s3.region":
		return &c.Blob.S3.Region
	case "blob.s3.bucket":
		return &c.Blob.S3.Bucket
	case "blob.s3.access_key_id":
		return &c.Blob.S3.AccessKeyID
	case "blob.s3.secret_access_key":
		return &c.Blob.S3.SecretAccessKey
	case "log.file":
		return &c.Log.File
	default:
		return nil
	}
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	if field := c.stringField(key); field != nil {
		return *field, nil
	}
	switch key {
	case "quota_bytes":
		return strconv.FormatInt(c.QuotaBytes, 10), nil
	case "otp_ttl":
		return c.OTPTTL.String(), nil
	case "session_ttl":
		return c.SessionTTL.String(), nil
	case "server.request_timeout":
		return c.Server.RequestTimeout.String(), nil
	case "server.max_upload_bytes":
		return strconv.FormatInt(c.Server.MaxUploadBytes, 10), nil
	case "server.purge_interval":
		return c.Server.PurgeInterval.String(), nil
	case "blob.s3.use_path_style":
		return strconv.FormatBool(c.Blob.S3.UsePathStyle), nil
	case "log.max_size_mb":
		return strconv.Itoa(c.Log.MaxSizeMB), nil
	case "log.max_backups":
		return strconv.Itoa(c.Log.MaxBackups), nil
	case "log.max_age_days":
		return strconv.Itoa(c.Log.MaxAgeDays), nil
	case "log.compress":
		return strconv.FormatBool(c.Log.Compress), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// Set parses value and assigns it to key.
func (c *Config) Set(key, value string) error {
	parsed, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if field := c.stringField(key); field != nil {
		*field = parsed.(string)
		return nil
	}
	switch key {
	case "quota_bytes":
		c.QuotaBytes = parsed.(int64)
	case "otp_ttl":
		c.OTPTTL = parsed.(time.Duration)
	case "session_ttl":
		c.SessionTTL = parsed.(time.Duration)
	case "server.request_timeout":
		c.Server.RequestTimeout = parsed.(time.Duration)
	case "server.max_upload_bytes":
		c.Server.MaxUploadBytes = parsed.(int64)
	case "server.purge_interval":
		c.Server.PurgeInterval = parsed.(time.Duration)
	case "blob.s3.use_path_style":
		c.Blob.S3.UsePathStyle = parsed.(bool)
	case "log.max_size_mb":
		c.Log.MaxSizeMB = int(parsed.(int64))
	case "log.max_backups":
		c.Log.MaxBackups = int(parsed.(int64))
	case "log.max_age_days":
		c.Log.MaxAgeDays = int(parsed.(int64))
	case "log.compress":
		c.Log.Compress = parsed.(bool)
	}
	return nil
}

func parseSetValue(key, value string) (any, error) {
	if !IsAllowedKey(key) {
		return nil, fmt.Errorf("unknown key: %s", key)
	}
	value = strings.TrimSpace(value)
	switch key {
	case "quota_bytes", "server.max_upload_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "log.max_size_mb", "log.max_backups", "log.max_age_days":
		parsed, err := strconv.ParseInt(value, 10, 32)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return parsed, nil
	case "otp_ttl", "session_ttl", "server.request_timeout", "server.purge_interval":
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed < 0 || (parsed == 0 && key != "server.purge_interval") {
			return nil, fmt.Errorf("%s must be a positive duration such as 15m", key)
		}
		return parsed, nil
	case "blob.s3.use_path_style", "log.compress":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "log_level":
		switch strings.ToLower(value) {
		case "debug", "info", "warn", "warning", "error":
			return strings.ToLower(value), nil
		}
		return nil, fmt.Errorf("log_level must be one of debug, info, warn, error")
	default:
		return value, nil
	}
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	parsed, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	// Durations are kept in their readable form.
	if d, ok := parsed.(time.Duration); ok {
		parsed = d.String()
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := setNestedKey(data, strings.Split(key, "."), parsed); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}
