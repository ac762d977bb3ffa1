package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var configEnv = []string{
	"CONFIG_PATH", "TELEGRAM_BOT_TOKEN", "ALLOWED_USERS", "DATABASE_PATH",
	"CACHE_BACKEND", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "CACHE_PREFIX",
	"FEED_VALIDATION_TIMEOUT", "FEED_USER_AGENT", "FEED_INSECURE_SKIP_VERIFY",
	"CHECK_INTERVAL", "EVAL_WORKERS", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnv {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./data/curator.db"},
		Cache: CacheConfig{
			Backend:   "memory",
			RedisAddr: "localhost:6379",
			Prefix:    "curator:",
		},
		Feeds: FeedsConfig{
			ValidationTimeout: 30 * time.Second,
			UserAgent:         "NewsCurator/1.0",
			CheckInterval:     15 * time.Minute,
			Workers:           8,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    func() *Config
		wantErr bool
	}{
		{
			name: "defaults applied",
			env:  map[string]string{},
			want: defaultConfig,
		},
		{
			name: "values from env",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":        "tok",
				"ALLOWED_USERS":             "111,222,333",
				"DATABASE_PATH":             "/tmp/curator.db",
				"CACHE_BACKEND":             "redis",
				"REDIS_ADDR":                "redis:6379",
				"REDIS_DB":                  "2",
				"FEED_VALIDATION_TIMEOUT":   "10s",
				"FEED_INSECURE_SKIP_VERIFY": "true",
				"LOG_LEVEL":                 "debug",
			},
			want: func() *Config {
				c := defaultConfig()
				c.Telegram = TelegramConfig{BotToken: "tok", AllowedUsers: []int64{111, 222, 333}}
				c.Database.Path = "/tmp/curator.db"
				c.Cache.Backend = "redis"
				c.Cache.RedisAddr = "redis:6379"
				c.Cache.RedisDB = 2
				c.Feeds.ValidationTimeout = 10 * time.Second
				c.Feeds.InsecureSkipVerify = true
				c.Log.Level = "debug"
				return c
			},
		},
		{
			name:    "validation timeout above limit",
			env:     map[string]string{"FEED_VALIDATION_TIMEOUT": "45s"},
			wantErr: true,
		},
		{
			name:    "unknown cache backend",
			env:     map[string]string{"CACHE_BACKEND": "memcached"},
			wantErr: true,
		},
		{
			name:    "invalid user id",
			env:     map[string]string{"ALLOWED_USERS": "123,abc"},
			wantErr: true,
		},
		{
			name:    "explicit config path missing",
			env:     map[string]string{"CONFIG_PATH": "/nonexistent/curator.yaml"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want(), got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := t.TempDir() + "/curator.yaml"
	yml := "database:\n  path: /srv/curator.db\nlog:\n  level: warn\n  format: json\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("LOG_LEVEL", "error")

	got, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := defaultConfig()
	want.Database.Path = "/srv/curator.db"
	want.Log = LogConfig{Level: "error", Format: "json"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name         string
		allowedUsers []int64
		userID       int64
		want         bool
	}{
		{name: "empty list allows everyone", allowedUsers: nil, userID: 42, want: true},
		{name: "user in list", allowedUsers: []int64{10, 20, 30}, userID: 20, want: true},
		{name: "user not in list", allowedUsers: []int64{10, 20, 30}, userID: 99, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Telegram: TelegramConfig{AllowedUsers: tt.allowedUsers}}
			if diff := cmp.Diff(tt.want, cfg.IsUserAllowed(tt.userID)); diff != "" {
				t.Errorf("IsUserAllowed() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
