package server

import (
	"testing"
	"time"
)

// TestNewConfig verifies the defaults returned by NewConfig.
func TestNewConfig(t *testing.T) {
	config := NewConfig()

	if config == nil {
		t.Fatal("NewConfig returned nil")
	}
	if config.Port != ":8080" {
		t.Errorf("Expected default port :8080, got %s", config.Port)
	}
	if config.MaxMessageSize != 16384 {
		t.Errorf("Expected default max message size 16384, got %d", config.MaxMessageSize)
	}
	if config.RateLimit.Burst != 20 || config.RateLimit.RefillInterval != time.Second {
		t.Errorf("Unexpected default rate limit %+v", config.RateLimit)
	}
	if config.Store.Backend != StoreMemory {
		t.Errorf("Expected memory store by default, got %q", config.Store.Backend)
	}
	if config.MaxUploadSize != 25<<20 {
		t.Errorf("Expected 25MiB upload limit, got %d", config.MaxUploadSize)
	}
	if config.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected 30s shutdown timeout, got %s", config.ShutdownTimeout)
	}
}

// TestNewConfigFromEnv verifies that every supported variable overrides its
// default.
func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9090")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, https://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "2048")
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "3")
	t.Setenv("UPLOAD_DIR", "/tmp/meetchat")
	t.Setenv("MAX_UPLOAD_SIZE", "1024")
	t.Setenv("STORE_BACKEND", " Redis ")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_PREFIX", "test:")
	t.Setenv("SHUTDOWN_TIMEOUT", "7")

	config := NewConfigFromEnv()

	if config.Port != ":9090" {
		t.Errorf("Port = %q", config.Port)
	}
	if len(config.AllowedOrigins) != 2 || config.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", config.AllowedOrigins)
	}
	if config.MaxMessageSize != 2048 {
		t.Errorf("MaxMessageSize = %d", config.MaxMessageSize)
	}
	if config.RateLimit.Burst != 5 || config.RateLimit.RefillInterval != 3*time.Second {
		t.Errorf("RateLimit = %+v", config.RateLimit)
	}
	if config.UploadDir != "/tmp/meetchat" || config.MaxUploadSize != 1024 {
		t.Errorf("upload settings = %q %d", config.UploadDir, config.MaxUploadSize)
	}
	if config.Store != (StoreConfig{Backend: StoreRedis, RedisAddr: "redis:6379", RedisPrefix: "test:"}) {
		t.Errorf("Store = %+v", config.Store)
	}
	if config.ShutdownTimeout != 7*time.Second {
		t.Errorf("ShutdownTimeout = %s", config.ShutdownTimeout)
	}
}

// TestNewConfigFromEnvInvalidValues verifies that malformed numbers keep the
// defaults.
func TestNewConfigFromEnvInvalidValues(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "big")
	t.Setenv("RATE_LIMIT_BURST", "-1")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "0")
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")

	config := NewConfigFromEnv()
	def := defaultConfig()

	if config.MaxMessageSize != def.MaxMessageSize {
		t.Errorf("MaxMessageSize = %d", config.MaxMessageSize)
	}
	if config.RateLimit != def.RateLimit {
		t.Errorf("RateLimit = %+v", config.RateLimit)
	}
	if config.ShutdownTimeout != def.ShutdownTimeout {
		t.Errorf("ShutdownTimeout = %s", config.ShutdownTimeout)
	}
}

func TestConfigSanitize(t *testing.T) {
	origins := []string{"http://localhost:3000"}
	cfg := Config{AllowedOrigins: origins, Store: StoreConfig{Backend: "postgres"}}

	got := cfg.sanitize()

	if got.Port != ":8080" || got.MaxMessageSize != 16384 || got.MaxUploadSize != 25<<20 {
		t.Errorf("defaults not applied: %+v", got)
	}
	if got.Store.Backend != StoreMemory {
		t.Errorf("unknown backend should fall back to memory, got %q", got.Store.Backend)
	}

	got.AllowedOrigins[0] = "mutated"
	if origins[0] != "http://localhost:3000" {
		t.Error("sanitize must copy AllowedOrigins")
	}
}
