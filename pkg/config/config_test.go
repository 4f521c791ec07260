package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[database]
path = "/tmp/b.db"

[scan]
timeout = "5m"
max_concurrent = 2
npm_registry = "https://npm.internal"

[licenses]
green = ["MIT"]
red = ["GPL-3.0-only"]

[[credentials]]
host = "git.example.com"
username = "bot"
token = "s3cret"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Database.Path != "/tmp/b.db" {
		t.Errorf("Database.Path = %q", c.Database.Path)
	}
	if c.Scan.Timeout.Std() != 5*time.Minute {
		t.Errorf("Timeout = %v", c.Scan.Timeout.Std())
	}
	if c.Scan.MaxConcurrent != 2 {
		t.Errorf("MaxConcurrent = %d", c.Scan.MaxConcurrent)
	}
	if c.Scan.NpmRegistry != "https://npm.internal" {
		t.Errorf("NpmRegistry = %q", c.Scan.NpmRegistry)
	}
	if c.Scan.PypiRegistry == "" {
		t.Error("PypiRegistry default not applied")
	}
	if len(c.Credentials) != 1 || c.Credentials[0].Token != "s3cret" {
		t.Errorf("Credentials = %+v", c.Credentials)
	}
	if len(c.Licenses.Green) != 1 || len(c.Licenses.Red) != 1 {
		t.Errorf("Licenses = %+v", c.Licenses)
	}
}

func TestLoadExplicitMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("explicit missing file should fail")
	}
}

func TestLoadDefaultMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Scan.MaxConcurrent != 4 {
		t.Errorf("MaxConcurrent = %d, want default 4", c.Scan.MaxConcurrent)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("BARISTA_DATABASE", "/data/x.db")
	t.Setenv("BARISTA_REDIS_ADDR", "localhost:6379")
	t.Setenv("BARISTA_GIT_TOKEN", "tok")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Database.Path != "/data/x.db" {
		t.Errorf("Database.Path = %q", c.Database.Path)
	}
	if c.Cache.Backend != CacheRedis || c.Cache.RedisAddr != "localhost:6379" {
		t.Errorf("Cache = %+v", c.Cache)
	}
	if len(c.Credentials) != 1 || c.Credentials[0].Host != "github.com" {
		t.Errorf("Credentials = %+v", c.Credentials)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"redis without addr", func(c *Config) { c.Cache.Backend = CacheRedis }, true},
		{"unknown cache", func(c *Config) { c.Cache.Backend = "memcached" }, true},
		{"mongo without uri", func(c *Config) { c.ScanLog.Backend = ScanLogMongo }, true},
		{"credential without host", func(c *Config) { c.Credentials = []Credential{{Token: "x"}} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
