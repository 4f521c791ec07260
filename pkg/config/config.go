// Package config loads barista's TOML configuration.
//
// Every component receives its settings from a [Config] value passed in by
// the caller. Only [Load] reads files and environment variables.
//
// A minimal config file:
//
//	[database]
//	path = "/var/lib/barista/barista.db"
//
//	[scan]
//	timeout = "30m"
//	max_concurrent = 4
//	npm_registry = "https://registry.npmjs.org"
//
//	[licenses]
//	green = ["MIT", "Apache-2.0", "BSD-3-Clause"]
//	red = ["GPL-3.0-only", "AGPL-3.0-only"]
//
//	[[credentials]]
//	host = "github.com"
//	username = "x-access-token"
//	token = "..."
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

const appName = "barista"

// Duration is a time.Duration decoded from strings like "30m".
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full barista configuration.
type Config struct {
	Database    Database     `toml:"database"`
	Scan        Scan         `toml:"scan"`
	Licenses    Licenses     `toml:"licenses"`
	Credentials []Credential `toml:"credentials"`
	Cache       Cache        `toml:"cache"`
	ScanLog     ScanLog      `toml:"scanlog"`
	Server      Server       `toml:"server"`
}

// Database configures the SQLite store.
type Database struct {
	Path string `toml:"path"`
}

// Scan configures the scan runner and the dependency fetchers.
type Scan struct {
	WorkDir         string   `toml:"work_dir"`
	CacheDir        string   `toml:"cache_dir"`
	Timeout         Duration `toml:"timeout"`
	MaxConcurrent   int      `toml:"max_concurrent"`
	KeepWorkDir     bool     `toml:"keep_work_dir"`
	NpmRegistry     string   `toml:"npm_registry"`
	PypiRegistry    string   `toml:"pypi_registry"`
	MavenRepository string   `toml:"maven_repository"`
	OSVURL          string   `toml:"osv_url"`
	SkipAdvisories  bool     `toml:"skip_advisories"`
}

// Licenses is the license policy. Identifiers are matched case-insensitively.
type Licenses struct {
	Green  []string `toml:"green"`
	Yellow []string `toml:"yellow"`
	Red    []string `toml:"red"`
}

// Credential authenticates git access to one host.
type Credential struct {
	Host     string `toml:"host"`
	Username string `toml:"username"`
	Token    string `toml:"token"`
}

// Cache selects the summary and registry response cache.
type Cache struct {
	Backend   string   `toml:"backend"` // none, file, redis
	Dir       string   `toml:"dir"`
	RedisAddr string   `toml:"redis_addr"`
	TTL       Duration `toml:"ttl"`
}

// ScanLog selects where fetcher logs are persisted.
type ScanLog struct {
	Backend       string `toml:"backend"` // sqlite, mongo
	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`
}

// Server configures the HTTP API.
type Server struct {
	Addr string `toml:"addr"`
}

// Cache backends.
const (
	CacheNone  = "none"
	CacheFile  = "file"
	CacheRedis = "redis"
)

// Scan log backends.
const (
	ScanLogSQLite = "sqlite"
	ScanLogMongo  = "mongo"
)

// Default returns a configuration with every default applied.
func Default() Config {
	var c Config
	c.WithDefaults()
	return c
}

// WithDefaults fills zero fields with defaults.
func (c *Config) WithDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(dataDir(), "barista.db")
	}
	if c.Scan.WorkDir == "" {
		c.Scan.WorkDir = filepath.Join(os.TempDir(), appName, "work")
	}
	if c.Scan.CacheDir == "" {
		c.Scan.CacheDir = filepath.Join(cacheDir(), "packages")
	}
	if c.Scan.Timeout == 0 {
		c.Scan.Timeout = Duration(30 * time.Minute)
	}
	if c.Scan.MaxConcurrent <= 0 {
		c.Scan.MaxConcurrent = 4
	}
	if c.Scan.NpmRegistry == "" {
		c.Scan.NpmRegistry = "https://registry.npmjs.org"
	}
	if c.Scan.PypiRegistry == "" {
		c.Scan.PypiRegistry = "https://pypi.org/pypi"
	}
	if c.Scan.MavenRepository == "" {
		c.Scan.MavenRepository = "https://repo1.maven.org/maven2"
	}
	if c.Scan.OSVURL == "" {
		c.Scan.OSVURL = "https://api.osv.dev"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheFile
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = filepath.Join(cacheDir(), "http")
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = Duration(24 * time.Hour)
	}
	if c.ScanLog.Backend == "" {
		c.ScanLog.Backend = ScanLogSQLite
	}
	if c.ScanLog.MongoDatabase == "" {
		c.ScanLog.MongoDatabase = appName
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}

// Validate checks settings that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case CacheNone, CacheFile:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache: redis backend requires redis_addr")
		}
	default:
		return fmt.Errorf("cache: unknown backend %q", c.Cache.Backend)
	}
	switch c.ScanLog.Backend {
	case ScanLogSQLite:
	case ScanLogMongo:
		if c.ScanLog.MongoURI == "" {
			return fmt.Errorf("scanlog: mongo backend requires mongo_uri")
		}
	default:
		return fmt.Errorf("scanlog: unknown backend %q", c.ScanLog.Backend)
	}
	for i, cred := range c.Credentials {
		if cred.Host == "" {
			return fmt.Errorf("credentials[%d]: host is required", i)
		}
	}
	return nil
}

// Load reads the config file at path (or the default location when path is
// empty), applies environment overrides and defaults, and validates the
// result. A missing default file is not an error.
func Load(path string) (Config, error) {
	var c Config
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if _, err := toml.DecodeFile(path, &c); err != nil {
		if explicit || !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	applyEnv(&c)
	c.WithDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// DefaultPath returns $XDG_CONFIG_HOME/barista/config.toml.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName, "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".config", appName, "config.toml")
}

func applyEnv(c *Config) {
	if v := os.Getenv("BARISTA_DATABASE"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("BARISTA_REDIS_ADDR"); v != "" {
		c.Cache.Backend = CacheRedis
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("BARISTA_MONGO_URI"); v != "" {
		c.ScanLog.Backend = ScanLogMongo
		c.ScanLog.MongoURI = v
	}
	if v := os.Getenv("BARISTA_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scan.MaxConcurrent = n
		}
	}
	if v := os.Getenv("BARISTA_GIT_TOKEN"); v != "" {
		host := os.Getenv("BARISTA_GIT_HOST")
		if host == "" {
			host = "github.com"
		}
		c.Credentials = append(c.Credentials, Credential{Host: host, Username: "x-access-token", Token: v})
	}
}

// cacheDir returns the cache directory using XDG standard (~/.cache/barista/).
func cacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName, "cache")
	}
	return filepath.Join(home, ".cache", appName)
}

func dataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName, "data")
	}
	return filepath.Join(home, ".local", "share", appName)
}
