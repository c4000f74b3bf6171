package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// chdirTemp runs the test in an empty directory so no stray .env is loaded.
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(wd)
	})
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	for _, key := range []string{"PORT", "ENV", "STORE_BACKEND", "SQLITE_PATH", "DELIVERY_MODE", "INSTANCE_ID", "DELIVERED_RETENTION", "MAX_BODY_BYTES", "RATE_LIMIT_WHITELIST"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.StoreBackend != BackendSQLite {
		t.Errorf("StoreBackend = %q, want %q", cfg.StoreBackend, BackendSQLite)
	}
	if cfg.DeliveredRetention != 168*time.Hour {
		t.Errorf("DeliveredRetention = %v, want 168h", cfg.DeliveredRetention)
	}
	if cfg.MaxBodyBytes != 65536 {
		t.Errorf("MaxBodyBytes = %d, want 65536", cfg.MaxBodyBytes)
	}
	if cfg.InstanceID == "" {
		t.Error("expected generated instance ID")
	}
	if !cfg.IsDevelopment() {
		t.Error("expected development by default")
	}
}

func TestLoadFromDotEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ENV", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("RATE_LIMIT_WHITELIST", "")

	env := "STORE_BACKEND=memory\nRATE_LIMIT_WHITELIST=10.0.0.1, 192.168.0.0/16 ,\n"
	if err := os.WriteFile(filepath.Join(".", ".env"), []byte(env), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	// godotenv does not override variables that are already set, even empty ones.
	os.Unsetenv("STORE_BACKEND")
	os.Unsetenv("RATE_LIMIT_WHITELIST")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StoreBackend != BackendMemory {
		t.Errorf("StoreBackend = %q, want %q", cfg.StoreBackend, BackendMemory)
	}
	if len(cfg.RateLimitWhitelist) != 2 || cfg.RateLimitWhitelist[1] != "192.168.0.0/16" {
		t.Errorf("RateLimitWhitelist = %v", cfg.RateLimitWhitelist)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"sqlite", Config{StoreBackend: BackendSQLite, MaxBodyBytes: 1}, false},
		{"postgres without url", Config{StoreBackend: BackendPostgres, MaxBodyBytes: 1}, true},
		{"postgres", Config{StoreBackend: BackendPostgres, DatabaseURL: "postgres://x", MaxBodyBytes: 1}, false},
		{"redis without url", Config{StoreBackend: BackendRedis, MaxBodyBytes: 1}, true},
		{"unknown backend", Config{StoreBackend: "mongo", MaxBodyBytes: 1}, true},
		{"bad delivery mode", Config{StoreBackend: BackendMemory, DeliveryMode: "purge", MaxBodyBytes: 1}, true},
		{"memory in production", Config{StoreBackend: BackendMemory, Env: "production", MaxBodyBytes: 1}, true},
		{"zero body limit", Config{StoreBackend: BackendMemory}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
