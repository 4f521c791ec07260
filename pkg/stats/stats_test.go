package stats

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Tim-sandbox/barista/pkg/aggregate"
	bErrors "github.com/Tim-sandbox/barista/pkg/errors"
	"github.com/Tim-sandbox/barista/pkg/model"
	"github.com/Tim-sandbox/barista/pkg/store"
)

var march = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "barista.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetClock(stepClock(march, time.Minute))

	e := New(db, aggregate.New(db, nil, nil, nil))
	e.SetClock(func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) })
	return e, db
}

// stepClock returns a clock that advances by step on every call.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

func addProject(t *testing.T, db *store.Store, name, owner, devType string) int64 {
	t.Helper()
	p := &model.Project{
		Name:            name,
		GitURL:          "https://example.com/" + name + ".git",
		PackageManager:  model.PackageManagerNpm,
		UserID:          owner,
		DevelopmentType: devType,
	}
	if err := db.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return p.ID
}

func publish(t *testing.T, db *store.Store, projectID int64, f model.Findings) {
	t.Helper()
	ctx := context.Background()
	scan, err := db.CreateScan(ctx, projectID, "main")
	if err != nil {
		t.Fatalf("CreateScan: %v", err)
	}
	if _, err := db.MarkRunning(ctx, scan.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := db.CompleteScan(ctx, scan.ID, &f); err != nil {
		t.Fatalf("CompleteScan: %v", err)
	}
}

func lic(id, license string, status model.LicenseStatus) model.LicenseItem {
	return model.LicenseItem{DisplayIdentifier: id, License: license, Status: status}
}

func sec(id string, sev model.Severity, path string) model.SecurityItem {
	return model.SecurityItem{DisplayIdentifier: id, Severity: sev, Path: path}
}

// seedFleet creates two organization projects owned by alice and bob, a
// community project and a project that was never scanned.
func seedFleet(t *testing.T, db *store.Store) (alice, bob int64) {
	t.Helper()
	alice = addProject(t, db, "a", "alice", "")
	bob = addProject(t, db, "b", "bob", "")
	community := addProject(t, db, "c", "alice", model.DevelopmentCommunity)
	addProject(t, db, "idle", "alice", "")

	publish(t, db, alice, model.Findings{
		License: model.LicenseScanResult{Items: []model.LicenseItem{lic("old@1", "GPL-3.0", model.LicenseRed)}},
	})
	publish(t, db, alice, model.Findings{
		License: model.LicenseScanResult{Items: []model.LicenseItem{
			lic("lodash@4", "MIT", model.LicenseGreen),
			lic("gpl@1", "GPL-3.0", model.LicenseRed),
		}},
		Security: model.SecurityScanResult{Items: []model.SecurityItem{
			sec("lodash@4", model.SeverityCritical, "lodash"),
			sec("gpl@1", model.SeverityLow, "gpl"),
		}},
	})
	publish(t, db, bob, model.Findings{
		License: model.LicenseScanResult{Items: []model.LicenseItem{
			lic("lodash@4", "MIT", model.LicenseGreen),
			lic("mystery@1", "", model.LicenseUnknown),
		}},
		Security: model.SecurityScanResult{Items: []model.SecurityItem{
			sec("lodash@4", model.SeverityHigh, "lodash"),
		}},
	})
	publish(t, db, community, model.Findings{
		License: model.LicenseScanResult{Items: []model.LicenseItem{lic("x@1", "GPL-3.0", model.LicenseRed)}},
	})
	return alice, bob
}

func TestIndices(t *testing.T) {
	e, db := newEngine(t)
	seedFleet(t, db)
	ctx := context.Background()

	tests := []struct {
		name          string
		filter        store.Filter
		nonCompliance float64
		highVuln      float64
	}{
		{"fleet", Fleet(), 50, 50},
		{"bob", Fleet("bob"), 50, 50},
		{"alice", Fleet("alice"), 50, 50},
		{"nobody", Fleet("carol"), IndexUndefined, IndexUndefined},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nc, err := e.LicenseNonComplianceIndex(ctx, tt.filter)
			if err != nil || nc != tt.nonCompliance {
				t.Errorf("LicenseNonComplianceIndex = %v, %v, want %v", nc, err, tt.nonCompliance)
			}
			hv, err := e.HighVulnerabilityIndex(ctx, tt.filter)
			if err != nil || hv != tt.highVuln {
				t.Errorf("HighVulnerabilityIndex = %v, %v, want %v", hv, err, tt.highVuln)
			}
		})
	}
}

func TestRatio(t *testing.T) {
	if got := ratio(0, 0); got != IndexUndefined {
		t.Errorf("ratio(0, 0) = %v", got)
	}
	if got := ratio(1, 3); got < 33.33 || got > 33.34 {
		t.Errorf("ratio(1, 3) = %v", got)
	}
	if got := ratio(0, 5); got != 0 {
		t.Errorf("ratio(0, 5) = %v", got)
	}
}

func TestTopLists(t *testing.T) {
	e, db := newEngine(t)
	seedFleet(t, db)
	ctx := context.Background()

	licenses, err := e.TopLicenses(ctx, Fleet())
	if err != nil {
		t.Fatalf("TopLicenses: %v", err)
	}
	want := []model.Count{{Key: "MIT", Count: 2}, {Key: "GPL-3.0", Count: 1}, {Key: "unknown", Count: 1}}
	if !slices.Equal(licenses, want) {
		t.Errorf("TopLicenses = %+v, want %+v", licenses, want)
	}

	components, err := e.TopComponents(ctx, Fleet())
	if err != nil || len(components) == 0 || components[0] != (model.Count{Key: "lodash@4", Count: 2}) {
		t.Errorf("TopComponents = %+v, %v", components, err)
	}

	vulns, err := e.TopVulnerabilities(ctx, Fleet())
	if err != nil {
		t.Fatalf("TopVulnerabilities: %v", err)
	}
	if want := []model.Count{{Key: "lodash", Count: 2}}; !slices.Equal(vulns, want) {
		t.Errorf("TopVulnerabilities = %+v, want %+v", vulns, want)
	}
}

func TestTopListsAreBounded(t *testing.T) {
	e, db := newEngine(t)
	pid := addProject(t, db, "big", "alice", "")
	var items []model.LicenseItem
	for i := range TopN + 5 {
		items = append(items, lic("pkg@1", "L-"+string(rune('a'+i)), model.LicenseGreen))
	}
	publish(t, db, pid, model.Findings{License: model.LicenseScanResult{Items: items}})

	got, err := e.TopLicenses(context.Background(), Fleet())
	if err != nil || len(got) != TopN {
		t.Errorf("TopLicenses returned %d entries, %v, want %d", len(got), err, TopN)
	}
}

func TestMonthlyTrendWindow(t *testing.T) {
	e, db := newEngine(t)
	seedFleet(t, db)
	ctx := context.Background()

	projects, err := e.MonthlyProjects(ctx, Fleet())
	if err != nil {
		t.Fatalf("MonthlyProjects: %v", err)
	}
	if want := []model.Count{{Key: "2026-03", Count: 3}}; !slices.Equal(projects, want) {
		t.Errorf("MonthlyProjects = %+v, want %+v", projects, want)
	}
	scans, err := e.MonthlyScans(ctx, Fleet())
	if err != nil {
		t.Fatalf("MonthlyScans: %v", err)
	}
	if want := []model.Count{{Key: "2026-03", Count: 2}}; !slices.Equal(scans, want) {
		t.Errorf("MonthlyScans = %+v, want %+v", scans, want)
	}

	// March 2026 falls out of the window once it is older than a year.
	e.SetClock(func() time.Time { return time.Date(2027, 4, 2, 0, 0, 0, 0, time.UTC) })
	if projects, _ := e.MonthlyProjects(ctx, Fleet()); len(projects) != 0 {
		t.Errorf("MonthlyProjects after a year = %+v, want none", projects)
	}
}

func TestWindowStart(t *testing.T) {
	e, _ := newEngine(t)
	e.SetClock(func() time.Time { return time.Date(2026, 10, 19, 23, 0, 0, 0, time.UTC) })
	if got, want := e.windowStart(), time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("windowStart = %v, want %v", got, want)
	}
}

func TestSummarize(t *testing.T) {
	e, db := newEngine(t)
	seedFleet(t, db)
	s, err := e.Summarize(context.Background(), Fleet())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.LicenseNonComplianceIndex != 50 || len(s.TopLicenses) != 3 || len(s.MonthlyScans) != 1 {
		t.Errorf("Summarize = %+v", s)
	}
}

func TestBadges(t *testing.T) {
	e, db := newEngine(t)
	alice, bob := seedFleet(t, db)
	ctx := context.Background()

	tests := []struct {
		project int64
		kind    string
		message string
		color   string
	}{
		{alice, BadgeLicenseState, "Sun Mar 01 2026", "red"},
		{alice, BadgeSecurityState, "Sun Mar 01 2026", "red"},
		{alice, BadgeVulnerabilities, "critical:1 low:1", "red"},
		{alice, BadgeComponents, "2", "#edb"},
		{bob, BadgeLicenseState, "Sun Mar 01 2026", "green"},
		{bob, BadgeVulnerabilities, "high:1", "red"},
	}
	for _, tt := range tests {
		b, err := e.Badge(ctx, tt.project, tt.kind)
		if err != nil {
			t.Fatalf("Badge(%d, %s): %v", tt.project, tt.kind, err)
		}
		if b.Message != tt.message || b.Color != tt.color || b.SchemaVersion != 1 {
			t.Errorf("Badge(%d, %s) = %+v, want %q %q", tt.project, tt.kind, b, tt.message, tt.color)
		}
	}
}

func TestBadgesWithoutScanAreUnknown(t *testing.T) {
	e, db := newEngine(t)
	pid := addProject(t, db, "fresh", "alice", "")

	badges, err := e.Badges(context.Background(), pid)
	if err != nil {
		t.Fatalf("Badges: %v", err)
	}
	if len(badges) != len(BadgeKinds) {
		t.Fatalf("Badges returned %d kinds", len(badges))
	}
	for kind, b := range badges {
		if b.Message != "unknown" || b.Color != "lightgrey" {
			t.Errorf("%s = %+v, want unknown/lightgrey", kind, b)
		}
	}
}

func TestBadgeNoFindingsIsUnknown(t *testing.T) {
	e, db := newEngine(t)
	pid := addProject(t, db, "clean", "alice", "")
	publish(t, db, pid, model.Findings{})

	b, err := e.Badge(context.Background(), pid, BadgeVulnerabilities)
	if err != nil {
		t.Fatalf("Badge: %v", err)
	}
	if b.Message != "unknown" || b.Color != "lightgrey" {
		t.Errorf("Badge = %+v, want unknown/lightgrey", b)
	}
	b, _ = e.Badge(context.Background(), pid, BadgeComponents)
	if b.Message != "0" || b.Color != "#edb" {
		t.Errorf("components = %+v", b)
	}
}

func TestBadgeUnknownKind(t *testing.T) {
	e, _ := newEngine(t)
	if _, err := e.Badge(context.Background(), 1, "stars"); !bErrors.Is(err, bErrors.ErrCodeInvalidInput) {
		t.Errorf("err = %v, want INVALID_INPUT", err)
	}
}

func TestVulnerabilitySummary(t *testing.T) {
	tests := []struct {
		counts []model.Count
		want   string
	}{
		{nil, "none detected"},
		{[]model.Count{{Key: "low", Count: 3}, {Key: "critical", Count: 1}}, "critical:1 low:3"},
		{[]model.Count{{Key: "moderate", Count: 1}, {Key: "medium", Count: 2}}, "medium:2 moderate:1"},
	}
	for _, tt := range tests {
		if got := vulnerabilitySummary(tt.counts); got != tt.want {
			t.Errorf("vulnerabilitySummary(%v) = %q, want %q", tt.counts, got, tt.want)
		}
	}
}

func TestSeverityColor(t *testing.T) {
	tests := map[model.Severity]string{
		model.SeverityCritical: "red",
		model.SeverityHigh:     "red",
		model.SeverityMedium:   "yellow",
		model.SeverityModerate: "yellow",
		model.SeverityLow:      "green",
		model.SeverityUnknown:  "unknown",
	}
	for sev, want := range tests {
		if got := severityColor(sev); got != want {
			t.Errorf("severityColor(%s) = %q, want %q", sev, got, want)
		}
	}
}

func TestMetricsAndBOMReadLatestCompletedScan(t *testing.T) {
	for _, last := range []model.ScanState{model.ScanRunning, model.ScanFailed} {
		t.Run(string(last), func(t *testing.T) {
			e, db := newEngine(t)
			ctx := context.Background()
			pid := addProject(t, db, "web", "alice", "")

			// S1 is red and critical, S2 green and clean, S3 never completes.
			publish(t, db, pid, model.Findings{
				License:  model.LicenseScanResult{Items: []model.LicenseItem{lic("gpl@1", "GPL-3.0", model.LicenseRed)}},
				Security: model.SecurityScanResult{Items: []model.SecurityItem{sec("gpl@1", model.SeverityCritical, "gpl")}},
			})
			publish(t, db, pid, model.Findings{
				License: model.LicenseScanResult{Items: []model.LicenseItem{
					lic("lodash@4", "MIT", model.LicenseGreen),
					lic("react@18", "MIT", model.LicenseGreen),
				}},
			})
			s3, err := db.CreateScan(ctx, pid, "main")
			if err != nil {
				t.Fatalf("CreateScan: %v", err)
			}
			db.MarkRunning(ctx, s3.ID)
			if last == model.ScanFailed {
				if err := db.FailScan(ctx, s3.ID, bErrors.ErrCodeTimeout, "too slow"); err != nil {
					t.Fatalf("FailScan: %v", err)
				}
			}

			if idx, _ := e.LicenseNonComplianceIndex(ctx, Fleet()); idx != 0 {
				t.Errorf("LicenseNonComplianceIndex = %v, want 0", idx)
			}
			if idx, _ := e.HighVulnerabilityIndex(ctx, Fleet()); idx != 0 {
				t.Errorf("HighVulnerabilityIndex = %v, want 0", idx)
			}
			if top, _ := e.TopComponents(ctx, Fleet()); len(top) != 2 || top[0].Key != "lodash@4" {
				t.Errorf("TopComponents = %+v", top)
			}

			agg := e.agg
			if st, _ := agg.HighestLicenseStatus(ctx, pid); st != model.LicenseGreen {
				t.Errorf("HighestLicenseStatus = %v, want green", st)
			}
			if sev, _ := agg.HighestSeverity(ctx, pid); sev != model.SeverityUnknown {
				t.Errorf("HighestSeverity = %v, want unknown", sev)
			}
			page, err := agg.LicenseBOM(ctx, pid, model.BOMQuery{})
			if err != nil || page.Total != 2 || page.Data[0].DisplayIdentifier != "lodash@4" {
				t.Errorf("LicenseBOM = %+v, %v", page, err)
			}
			secPage, err := agg.SecurityBOM(ctx, pid, model.BOMQuery{})
			if err != nil || secPage.Total != 0 {
				t.Errorf("SecurityBOM = %+v, %v", secPage, err)
			}
			b, err := e.Badge(ctx, pid, BadgeComponents)
			if err != nil || b.Message != "2" {
				t.Errorf("components badge = %+v, %v", b, err)
			}
		})
	}
}
