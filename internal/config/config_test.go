package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
)

// isolate points the config dir at a fresh temp dir and clears STASH_* env.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(configDirEnvKey, dir)
	for _, e := range envKeys {
		t.Setenv(e.env, "")
	}
	return dir
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("expected default API URL, got %q", cfg.APIURL)
	}
	if cfg.UsersCollection != "users" || cfg.FilesCollection != "files" || cfg.BucketID != "files" {
		t.Fatalf("unexpected collection defaults %+v", cfg)
	}
	if cfg.QuotaBytes != 2*1024*1024*1024 {
		t.Fatalf("expected 2 GiB quota, got %d", cfg.QuotaBytes)
	}
	if cfg.OTPTTL != 15*time.Minute || cfg.SessionTTL != 30*24*time.Hour {
		t.Fatalf("unexpected ttl defaults %v %v", cfg.OTPTTL, cfg.SessionTTL)
	}
	if cfg.Mail.Mode != MailModeLog || cfg.Blob.Backend != BlobBackendLocal {
		t.Fatalf("unexpected mode defaults %+v %+v", cfg.Mail, cfg.Blob)
	}
	if cfg.Server.RequestTimeout != 30*time.Second {
		t.Fatalf("expected 30s request timeout, got %v", cfg.Server.RequestTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, globalFileName), []byte(`api_url = "http://localhost:9000"
project_id = "from-toml"
bucket_id = "toml-bucket"
otp_ttl = "5m"

[server]
request_timeout = "10s"
`), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, projectFileName), []byte(`project_id: from-yaml
quota_bytes: 1024
mail:
  mode: smtp
  smtp_addr: "mail.example.com:587"
`), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("STASH_BUCKET_ID", "env-bucket")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://localhost:9000" {
		t.Fatalf("expected toml api_url, got %q", cfg.APIURL)
	}
	if cfg.PublicURL != cfg.APIURL {
		t.Fatalf("expected public url to default to api url, got %q", cfg.PublicURL)
	}
	if cfg.ProjectID != "from-yaml" {
		t.Fatalf("expected yaml to override toml, got %q", cfg.ProjectID)
	}
	if cfg.BucketID != "env-bucket" {
		t.Fatalf("expected env to override files, got %q", cfg.BucketID)
	}
	if cfg.OTPTTL != 5*time.Minute || cfg.Server.RequestTimeout != 10*time.Second {
		t.Fatalf("unexpected durations %v %v", cfg.OTPTTL, cfg.Server.RequestTimeout)
	}
	if cfg.QuotaBytes != 1024 {
		t.Fatalf("expected quota 1024, got %d", cfg.QuotaBytes)
	}
	if cfg.Mail.Mode != MailModeSMTP || cfg.Mail.SMTPAddr != "mail.example.com:587" {
		t.Fatalf("unexpected mail config %+v", cfg.Mail)
	}
	if cfg.UsersCollection != DefaultUsersCollection {
		t.Fatalf("expected untouched default, got %q", cfg.UsersCollection)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("expected two sources, got %v", cfg.Sources)
	}
	if cfg.DBPath == "" || cfg.Blob.Dir == "" {
		t.Fatalf("expected db path and blob dir defaults, got %q %q", cfg.DBPath, cfg.Blob.Dir)
	}
}

func TestLoadDefaultsOutboxInLogMode(t *testing.T) {
	isolate(t)
	t.Chdir(t.TempDir())
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mail.Outbox != filepath.Join(cwd, DefaultOutboxFileName) {
		t.Fatalf("expected outbox under cwd, got %q", cfg.Mail.Outbox)
	}

	t.Setenv("STASH_MAIL_OUTBOX", filepath.Join(cwd, "mail.txt"))
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mail.Outbox != filepath.Join(cwd, "mail.txt") {
		t.Fatalf("expected env outbox, got %q", cfg.Mail.Outbox)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	os.Unsetenv("STASH_S3_BUCKET")
	os.Unsetenv("STASH_BLOB_BACKEND")
	t.Cleanup(func() {
		os.Unsetenv("STASH_S3_BUCKET")
		os.Unsetenv("STASH_BLOB_BACKEND")
	})
	if err := os.WriteFile(filepath.Join(dir, dotEnvFileName), []byte("STASH_BLOB_BACKEND=s3\nSTASH_S3_BUCKET=stash-blobs\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Blob.Backend != BlobBackendS3 || cfg.Blob.S3.Bucket != "stash-blobs" {
		t.Fatalf("expected .env values, got %+v", cfg.Blob)
	}
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	isolate(t)
	t.Setenv("STASH_QUOTA_BYTES", "lots")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "STASH_QUOTA_BYTES") {
		t.Fatalf("expected env error, got %v", err)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, globalFileName), []byte("api_url = "), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mail mode", func(c *Config) { c.Mail.Mode = "pigeon" }},
		{"smtp without addr", func(c *Config) { c.Mail.Mode = MailModeSMTP }},
		{"unknown blob backend", func(c *Config) { c.Blob.Backend = "tape" }},
		{"s3 without bucket", func(c *Config) { c.Blob.Backend = BlobBackendS3 }},
		{"empty bucket id", func(c *Config) { c.BucketID = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	cfg := Default()
	for _, key := range AllowedKeys() {
		if _, err := cfg.Get(key); err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
	}

	sets := map[string]string{
		"api_key":                "k",
		"quota_bytes":            "4096",
		"session_ttl":            "2h",
		"blob.s3.use_path_style": "true",
		"log.max_backups":        "7",
		"log_level":              "DEBUG",
	}
	for key, value := range sets {
		if err := cfg.Set(key, value); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if cfg.APIKey != "k" || cfg.QuotaBytes != 4096 || cfg.SessionTTL != 2*time.Hour {
		t.Fatalf("unexpected values %+v", cfg)
	}
	if !cfg.Blob.S3.UsePathStyle || cfg.Log.MaxBackups != 7 || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected values %+v", cfg)
	}
	if got, _ := cfg.Get("session_ttl"); got != "2h0m0s" {
		t.Fatalf("unexpected session_ttl %q", got)
	}

	for key, value := range map[string]string{
		"quota_bytes":            "-1",
		"otp_ttl":                "soon",
		"blob.s3.use_path_style": "maybe",
		"log_level":              "loud",
		"nope":                   "x",
	} {
		if err := cfg.Set(key, value); err == nil {
			t.Fatalf("expected error setting %s=%s", key, value)
		}
	}
}

func TestIsSecretKey(t *testing.T) {
	if !IsSecretKey("api_key") || !IsSecretKey("blob.s3.secret_access_key") {
		t.Fatal("expected secret keys")
	}
	if IsSecretKey("api_url") {
		t.Fatal("api_url is not secret")
	}
}

func TestSetKeyWritesNestedTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", globalFileName)

	if err := SetKey(path, "api_url", "http://localhost:1234"); err != nil {
		t.Fatalf("set api_url: %v", err)
	}
	if err := SetKey(path, "blob.s3.bucket", "b"); err != nil {
		t.Fatalf("set blob.s3.bucket: %v", err)
	}
	if err := SetKey(path, "server.request_timeout", "45s"); err != nil {
		t.Fatalf("set server.request_timeout: %v", err)
	}
	if err := SetKey(path, "quota_bytes", "0"); err == nil {
		t.Fatal("expected invalid quota to be rejected")
	}
	if err := SetKey(path, "unknown", "x"); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		t.Fatalf("decode written file: %v", err)
	}
	if cfg.APIURL != "http://localhost:1234" || cfg.Blob.S3.Bucket != "b" {
		t.Fatalf("unexpected decoded config %+v", cfg)
	}
	if cfg.Server.RequestTimeout != 45*time.Second {
		t.Fatalf("expected 45s, got %v", cfg.Server.RequestTimeout)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 config file, got %v", info.Mode().Perm())
	}
}
