package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	bErrors "github.com/Tim-sandbox/barista/pkg/errors"
	"github.com/Tim-sandbox/barista/pkg/model"
	"github.com/Tim-sandbox/barista/pkg/store"
)

// testEnv is a CLI configured against a throwaway database and cache.
type testEnv struct {
	cli        *CLI
	configPath string
	dbPath     string
	cacheDir   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	for _, k := range []string{"BARISTA_DATABASE", "BARISTA_REDIS_ADDR", "BARISTA_MONGO_URI", "BARISTA_MAX_CONCURRENT", "BARISTA_GIT_TOKEN"} {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	env := &testEnv{
		cli:        New(io.Discard, log.InfoLevel),
		configPath: filepath.Join(dir, "config.toml"),
		dbPath:     filepath.Join(dir, "data", "barista.db"),
		cacheDir:   filepath.Join(dir, "cache"),
	}
	config := `[database]
path = "` + env.dbPath + `"

[scan]
work_dir = "` + filepath.Join(dir, "work") + `"
cache_dir = "` + filepath.Join(dir, "packages") + `"
skip_advisories = true

[cache]
backend = "file"
dir = "` + env.cacheDir + `"
`
	if err := os.WriteFile(env.configPath, []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}
	return env
}

// run executes the command line against a fresh root command.
func (e *testEnv) run(args ...string) error {
	root := e.cli.RootCommand()
	root.SetArgs(append(args, "--config", e.configPath))
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

// db opens the environment's database. It is closed with the test.
func (e *testEnv) db(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(e.dbPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedScan publishes a completed scan with fixed findings for projectID.
func seedScan(t *testing.T, db *store.Store, projectID int64) *model.Scan {
	t.Helper()
	ctx := context.Background()
	scan, err := db.CreateScan(ctx, projectID, "main")
	if err != nil {
		t.Fatalf("CreateScan: %v", err)
	}
	if _, err := db.MarkRunning(ctx, scan.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	f := model.Findings{
		License: model.LicenseScanResult{Items: []model.LicenseItem{
			{DisplayIdentifier: "lodash@4.17.21", License: "MIT", Status: model.LicenseGreen},
			{DisplayIdentifier: "gpl-lib@1.0.0", License: "GPL-3.0-only", Status: model.LicenseRed},
		}},
		Security: model.SecurityScanResult{Items: []model.SecurityItem{
			{DisplayIdentifier: "lodash@4.17.21", Severity: model.SeverityHigh, Path: "web>lodash", VulnerabilityID: "GHSA-1"},
		}},
	}
	if err := db.CompleteScan(ctx, scan.ID, &f); err != nil {
		t.Fatalf("CompleteScan: %v", err)
	}
	return scan
}

func (e *testEnv) createProject(t *testing.T, name, owner string) {
	t.Helper()
	err := e.run("project", "create", "--name", name,
		"--git-url", "https://github.com/acme/"+name+".git",
		"-p", "npm", "--owner", owner)
	if err != nil {
		t.Fatalf("project create: %v", err)
	}
}

func TestProjectCreateAndList(t *testing.T) {
	env := newTestEnv(t)
	env.createProject(t, "web", "alice")
	env.createProject(t, "api (v2)", "bob")

	if err := env.run("project", "list", "--owner", "alice"); err != nil {
		t.Fatalf("project list: %v", err)
	}
	if err := env.run("project", "show", "2"); err != nil {
		t.Fatalf("project show: %v", err)
	}

	projects, err := env.db(t).ListProjects(context.Background(), store.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 2 {
		t.Fatalf("got %d projects, want 2", len(projects))
	}
	if projects[1].Name != "api -v2-" {
		t.Errorf("name = %q, want sanitized", projects[1].Name)
	}
	if projects[0].DevelopmentType != model.DevelopmentOrganization {
		t.Errorf("development type = %q", projects[0].DevelopmentType)
	}
}

func TestProjectCreateErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code bErrors.Code
	}{
		{
			name: "unsupported package manager",
			args: []string{"--name", "x", "--git-url", "https://github.com/acme/x.git", "-p", "cargo"},
			code: bErrors.ErrCodeUnsupported,
		},
		{
			name: "missing package manager",
			args: []string{"--name", "x", "--git-url", "https://github.com/acme/x.git"},
			code: bErrors.ErrCodeInvalidInput,
		},
		{
			name: "bad development type",
			args: []string{"--name", "x", "--git-url", "https://github.com/acme/x.git", "-p", "pip", "--development-type", "hobby"},
			code: bErrors.ErrCodeInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			err := env.run(append([]string{"project", "create"}, tt.args...)...)
			if !bErrors.Is(err, tt.code) {
				t.Fatalf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestProjectCreateRequiresName(t *testing.T) {
	env := newTestEnv(t)
	err := env.run("project", "create", "--git-url", "https://github.com/acme/x.git", "-p", "npm")
	if err == nil || !strings.Contains(err.Error(), "name") {
		t.Fatalf("err = %v, want required flag error", err)
	}
}

func TestProjectUpdateOwner(t *testing.T) {
	env := newTestEnv(t)
	env.createProject(t, "web", "alice")

	err := env.run("project", "update", "1", "--owner", "bob")
	if !bErrors.Is(err, bErrors.ErrCodeInvalidInput) {
		t.Fatalf("owner change without --admin: err = %v", err)
	}
	if err := env.run("project", "update", "1", "--owner", "bob", "--admin", "--deployment-type", "saas"); err != nil {
		t.Fatalf("owner change with --admin: %v", err)
	}

	p, err := env.db(t).GetProject(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if p.UserID != "bob" || p.DeploymentType != "saas" || p.Name != "web" {
		t.Errorf("project = %+v", p)
	}
}

func TestProjectNotFound(t *testing.T) {
	env := newTestEnv(t)
	for _, args := range [][]string{
		{"project", "show", "42"},
		{"scan", "list", "42"},
		{"scan", "show", "no-such-scan"},
		{"status", "42"},
		{"bom", "42"},
	} {
		if err := env.run(args...); !bErrors.Is(err, bErrors.ErrCodeNotFound) {
			t.Errorf("%v: err = %v, want NOT_FOUND", args, err)
		}
	}
}

func TestInvalidProjectID(t *testing.T) {
	env := newTestEnv(t)
	if err := env.run("project", "show", "abc"); !bErrors.Is(err, bErrors.ErrCodeInvalidInput) {
		t.Fatalf("err = %v, want INVALID_INPUT", err)
	}
}

func TestProjectValidateRejectsMalformedURL(t *testing.T) {
	env := newTestEnv(t)
	if err := env.run("project", "validate", "not a url"); err == nil {
		t.Fatal("expected error for malformed URL")
	}
}

func TestReadCommandsAfterScan(t *testing.T) {
	env := newTestEnv(t)
	env.createProject(t, "web", "alice")
	env.createProject(t, "idle", "alice")
	seedScan(t, env.db(t), 1)

	for _, args := range [][]string{
		{"status", "1"},
		{"status", "2"},
		{"scan", "list", "1"},
		{"scan", "list", "2"},
		{"bom", "1"},
		{"bom", "1", "--security"},
		{"bom", "1", "--licenses-only"},
		{"bom", "1", "--filter", "lodash", "--page-size", "1"},
		{"stats", "index"},
		{"stats", "index", "--owner", "nobody"},
		{"stats", "top"},
		{"stats", "top", "vulnerabilities"},
		{"stats", "trend"},
		{"stats", "summary"},
		{"stats", "badge", "1"},
		{"stats", "badge", "2", "components"},
	} {
		if err := env.run(args...); err != nil {
			t.Errorf("%v: %v", args, err)
		}
	}
}

func TestStatsRejectsUnknownArgs(t *testing.T) {
	env := newTestEnv(t)
	env.createProject(t, "web", "alice")

	if err := env.run("stats", "badge", "1", "stars"); !bErrors.Is(err, bErrors.ErrCodeInvalidInput) {
		t.Errorf("unknown badge kind: err = %v", err)
	}
	if err := env.run("stats", "top", "owners"); err == nil {
		t.Error("unknown top list: expected error")
	}
	if err := env.run("bom", "1", "--security", "--licenses-only"); err == nil {
		t.Error("exclusive flags: expected error")
	}
}

func TestScanLogs(t *testing.T) {
	env := newTestEnv(t)
	env.createProject(t, "web", "alice")
	db := env.db(t)
	scan := seedScan(t, db, 1)
	if err := db.PutScanLog(context.Background(), scan.ID, "==> npm install\n"); err != nil {
		t.Fatal(err)
	}

	if err := env.run("scan", "show", scan.ID); err != nil {
		t.Fatalf("scan show: %v", err)
	}
	if err := env.run("scan", "logs", scan.ID); err != nil {
		t.Fatalf("scan logs: %v", err)
	}
}

func TestBOMExport(t *testing.T) {
	env := newTestEnv(t)
	env.createProject(t, "web", "alice")

	out := filepath.Join(t.TempDir(), "web.spdx.json")
	if err := env.run("bom", "1", "--export", "spdx", "-o", out); !bErrors.Is(err, bErrors.ErrCodeNotFound) {
		t.Fatalf("export without completed scan: err = %v, want NOT_FOUND", err)
	}

	scan := seedScan(t, env.db(t), 1)
	if err := env.run("bom", "1", "--export", "spdx", "-o", out); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"SPDXRef-DOCUMENT", "lodash", "GPL-3.0-only"} {
		if !bytes.Contains(data, []byte(want)) {
			t.Errorf("export lacks %q", want)
		}
	}

	cdx := filepath.Join(t.TempDir(), "web.cdx.json")
	if err := env.run("bom", "1", "--export", "cyclonedx", "--scan", scan.ID, "-o", cdx); err != nil {
		t.Fatalf("export scan: %v", err)
	}
	if data, _ := os.ReadFile(cdx); !bytes.Contains(data, []byte(`"bomFormat": "CycloneDX"`)) {
		t.Errorf("cyclonedx export = %.200s", data)
	}

	if err := env.run("bom", "1", "--export", "swid"); !bErrors.Is(err, bErrors.ErrCodeInvalidInput) {
		t.Errorf("unknown format: err = %v", err)
	}
}

func TestScanStartUnknownProject(t *testing.T) {
	env := newTestEnv(t)
	if err := env.run("scan", "start", "7"); !bErrors.Is(err, bErrors.ErrCodeNotFound) {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

func TestConfigErrors(t *testing.T) {
	env := newTestEnv(t)
	env.configPath = filepath.Join(t.TempDir(), "missing.toml")
	if err := env.run("project", "list"); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestParseProjectID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1", 1, false},
		{"42", 42, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"web", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parseProjectID(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseProjectID(%q) = %d, %v", tt.in, got, err)
		}
	}
}
