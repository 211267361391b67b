package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tasklist/internal/adapters/events"
	"tasklist/internal/blob"
	"tasklist/internal/core"
)

const secret = "0123456789abcdef0123456789abcdef"

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, "TASKLIST_") {
			t.Setenv(name, "")
		}
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasklist.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TASKLIST_JWT_SECRET", secret)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != DefaultListenAddr || cfg.Storage.Driver != core.StorageSQLite ||
		cfg.Blob.Driver != blob.DriverFilesystem || cfg.Events.Driver != events.DriverMemory ||
		cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
listen: ":9000"
jwt_secret: "`+secret+`"
storage:
  driver: memory
blob:
  driver: s3
  s3:
    bucket: archives
    region: us-east-1
    path_style: true
events:
  driver: redis
  redis_addr: "redis:6379"
  allowed_origins: ["https://file.example"]
log:
  level: debug
  format: json
`)
	t.Setenv("TASKLIST_LISTEN_ADDR", ":9100")
	t.Setenv("TASKLIST_STORAGE_DRIVER", "postgres")
	t.Setenv("TASKLIST_POSTGRES_DSN", "postgres://localhost/tasks")
	t.Setenv("TASKLIST_ALLOWED_ORIGINS", "https://app.example, ,https://admin.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9100" {
		t.Fatalf("env should override listen, got %s", cfg.Listen)
	}
	if cfg.Storage.Driver != core.StoragePostgres || cfg.Storage.PostgresDSN != "postgres://localhost/tasks" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Blob.Driver != blob.DriverS3 || cfg.Blob.S3.Bucket != "archives" || !cfg.Blob.S3.PathStyle {
		t.Fatalf("unexpected blob %+v", cfg.Blob)
	}
	if cfg.Events.Driver != events.DriverRedis || cfg.Events.RedisAddr != "redis:6379" {
		t.Fatalf("unexpected events %+v", cfg.Events)
	}
	if got := cfg.Events.AllowedOrigins; len(got) != 2 || got[0] != "https://app.example" || got[1] != "https://admin.example" {
		t.Fatalf("env should replace allowed origins, got %v", got)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log %+v", cfg.Log)
	}
}

func TestLoadRejects(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"weak secret", `jwt_secret: short`, "jwt_secret"},
		{"unknown field", "jwt_secret: " + secret + "\nbogus: 1", "bogus"},
		{"storage driver", "jwt_secret: " + secret + "\nstorage: {driver: mongo}", "storage driver"},
		{"postgres dsn", "jwt_secret: " + secret + "\nstorage: {driver: postgres}", "postgres_dsn"},
		{"blob driver", "jwt_secret: " + secret + "\nblob: {driver: gcs}", "blob driver"},
		{"s3 bucket", "jwt_secret: " + secret + "\nblob: {driver: s3}", "bucket"},
		{"events driver", "jwt_secret: " + secret + "\nevents: {driver: kafka}", "events driver"},
		{"log level", "jwt_secret: " + secret + "\nlog: {level: loud}", "log level"},
		{"log format", "jwt_secret: " + secret + "\nlog: {format: xml}", "log format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeFile(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf).Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %s", buf.String())
	}
	NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf).Warn("shown", "k", "v")
	if !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Fatalf("expected json output, got %s", buf.String())
	}
	buf.Reset()
	NewLogger(LogConfig{Level: "info", Format: "text"}, &buf).Info("plain")
	if !strings.Contains(buf.String(), "msg=plain") {
		t.Fatalf("expected text output, got %s", buf.String())
	}
}
