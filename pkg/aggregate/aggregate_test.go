package aggregate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Tim-sandbox/barista/pkg/cache"
	bErrors "github.com/Tim-sandbox/barista/pkg/errors"
	"github.com/Tim-sandbox/barista/pkg/model"
	"github.com/Tim-sandbox/barista/pkg/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "barista.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newProject(t *testing.T, db *store.Store) int64 {
	t.Helper()
	p := &model.Project{Name: "app", GitURL: "https://example.com/app.git", PackageManager: model.PackageManagerNpm}
	if err := db.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return p.ID
}

func publish(t *testing.T, db *store.Store, projectID int64, f model.Findings) *model.Scan {
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
	return scan
}

func lic(id, license string, status model.LicenseStatus) model.LicenseItem {
	return model.LicenseItem{DisplayIdentifier: id, License: license, Status: status}
}

func sec(id string, sev model.Severity, path, vuln string) model.SecurityItem {
	return model.SecurityItem{DisplayIdentifier: id, Severity: sev, Path: path, VulnerabilityID: vuln}
}

var sampleFindings = model.Findings{
	License: model.LicenseScanResult{Items: []model.LicenseItem{
		lic("lodash@4.17.21", "MIT", model.LicenseGreen),
		lic("react@18.2.0", "MIT", model.LicenseGreen),
		lic("left-pad@1.3.0", "WTFPL", model.LicenseYellow),
		lic("mystery@0.0.1", "", model.LicenseUnknown),
		lic("lodash@4.17.21", "MIT", model.LicenseGreen),
	}},
	Security: model.SecurityScanResult{Items: []model.SecurityItem{
		sec("lodash@4.17.21", model.SeverityHigh, "lodash", "GHSA-1"),
		sec("minimist@1.2.0", model.SeverityCritical, "mkdirp>minimist", "GHSA-2"),
		sec("minimist@1.2.0", model.SeverityCritical, "optimist>minimist", "GHSA-2"),
		sec("ws@7.0.0", model.SeverityLow, "ws", "GHSA-3"),
	}},
}

func TestNoCompletedScanYieldsUnknown(t *testing.T) {
	db := newStore(t)
	pid := newProject(t, db)
	a := New(db, nil, nil, nil)
	ctx := context.Background()

	// A pending scan is invisible.
	if _, err := db.CreateScan(ctx, pid, "main"); err != nil {
		t.Fatalf("CreateScan: %v", err)
	}

	for _, dim := range []model.Dimension{model.DimensionLicense, model.DimensionSecurity} {
		r, err := a.HighestStatus(ctx, pid, dim)
		if err != nil {
			t.Fatalf("HighestStatus(%s): %v", dim, err)
		}
		if !r.Unknown() || r.Status != "unknown" {
			t.Errorf("HighestStatus(%s) = %+v, want unknown", dim, r)
		}
	}
	counts, err := a.DistinctBy(ctx, pid, model.DimensionSecurity, KeySeverity)
	if err != nil || len(counts) != 0 {
		t.Errorf("DistinctBy = %+v, %v", counts, err)
	}
	page, err := a.LicenseBOM(ctx, pid, model.BOMQuery{})
	if err != nil || page.Total != 0 || page.Data == nil {
		t.Errorf("LicenseBOM = %+v, %v", page, err)
	}
	if scan, err := a.LatestCompletedScan(ctx, pid); err != nil || scan != nil {
		t.Errorf("LatestCompletedScan = %+v, %v", scan, err)
	}
}

func TestHighestStatus(t *testing.T) {
	db := newStore(t)
	pid := newProject(t, db)
	a := New(db, nil, nil, nil)
	ctx := context.Background()
	publish(t, db, pid, sampleFindings)

	got, err := a.HighestLicenseStatus(ctx, pid)
	if err != nil || got != model.LicenseYellow {
		t.Errorf("HighestLicenseStatus = %v, %v, want yellow", got, err)
	}
	sev, err := a.HighestSeverity(ctx, pid)
	if err != nil || sev != model.SeverityCritical {
		t.Errorf("HighestSeverity = %v, %v, want critical", sev, err)
	}
	r, _ := a.HighestStatus(ctx, pid, model.DimensionSecurity)
	if r.Rank != int(model.SeverityCritical) || r.Status != "critical" {
		t.Errorf("HighestStatus(security) = %+v", r)
	}
	if _, err := a.HighestStatus(ctx, pid, "obligations"); !bErrors.Is(err, bErrors.ErrCodeInvalidInput) {
		t.Errorf("unknown dimension err = %v", err)
	}
}

func TestHighestStatusFollowsLatestScanOnly(t *testing.T) {
	db := newStore(t)
	pid := newProject(t, db)
	a := New(db, nil, nil, nil)
	ctx := context.Background()

	publish(t, db, pid, model.Findings{License: model.LicenseScanResult{Items: []model.LicenseItem{
		lic("gpl@1", "GPL-3.0", model.LicenseRed),
	}}})
	publish(t, db, pid, model.Findings{License: model.LicenseScanResult{Items: []model.LicenseItem{
		lic("mit@1", "MIT", model.LicenseGreen),
	}}})

	got, _ := a.HighestLicenseStatus(ctx, pid)
	if got != model.LicenseGreen {
		t.Errorf("HighestLicenseStatus = %v, want green from the latest scan", got)
	}
}

func TestDistinctBy(t *testing.T) {
	db := newStore(t)
	pid := newProject(t, db)
	a := New(db, nil, nil, nil)
	ctx := context.Background()
	publish(t, db, pid, sampleFindings)

	tests := []struct {
		dim  model.Dimension
		key  string
		want []model.Count
	}{
		{model.DimensionLicense, KeyName, []model.Count{{Key: "MIT", Count: 3}, {Key: "WTFPL", Count: 1}, {Key: "unknown", Count: 1}}},
		{model.DimensionLicense, KeyStatus, []model.Count{{Key: "green", Count: 3}, {Key: "unknown", Count: 1}, {Key: "yellow", Count: 1}}},
		{model.DimensionSecurity, KeySeverity, []model.Count{{Key: "critical", Count: 2}, {Key: "high", Count: 1}, {Key: "low", Count: 1}}},
		{model.DimensionSecurity, KeyPackage, []model.Count{{Key: "minimist@1.2.0", Count: 2}, {Key: "lodash@4.17.21", Count: 1}, {Key: "ws@7.0.0", Count: 1}}},
		{model.DimensionSecurity, KeyPath, []model.Count{{Key: "lodash", Count: 1}, {Key: "mkdirp>minimist", Count: 1}, {Key: "optimist>minimist", Count: 1}, {Key: "ws", Count: 1}}},
	}
	for _, tt := range tests {
		t.Run(string(tt.dim)+"/"+tt.key, func(t *testing.T) {
			got, err := a.DistinctBy(ctx, pid, tt.dim, tt.key)
			if err != nil {
				t.Fatalf("DistinctBy: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("DistinctBy = %+v, want %+v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}

	if _, err := a.DistinctBy(ctx, pid, model.DimensionLicense, KeySeverity); !bErrors.Is(err, bErrors.ErrCodeInvalidInput) {
		t.Errorf("invalid key err = %v", err)
	}
}

func TestLicenseBOM(t *testing.T) {
	db := newStore(t)
	pid := newProject(t, db)
	a := New(db, nil, nil, nil)
	ctx := context.Background()
	publish(t, db, pid, sampleFindings)

	page, err := a.LicenseBOM(ctx, pid, model.BOMQuery{})
	if err != nil {
		t.Fatalf("LicenseBOM: %v", err)
	}
	if page.Total != 4 || page.PageCount != 1 || page.Data[0].DisplayIdentifier != "left-pad@1.3.0" {
		t.Errorf("page = %+v", page)
	}

	page, _ = a.LicenseBOM(ctx, pid, model.BOMQuery{FilterText: "LODASH"})
	if page.Total != 1 || page.Data[0].DisplayIdentifier != "lodash@4.17.21" {
		t.Errorf("filtered page = %+v", page)
	}

	page, _ = a.LicenseBOM(ctx, pid, model.BOMQuery{License: "mit"})
	if page.Total != 2 {
		t.Errorf("license-restricted total = %d, want 2", page.Total)
	}

	page, _ = a.LicenseBOM(ctx, pid, model.BOMQuery{Page: 1, PageSize: 3})
	if page.Count != 1 || page.Total != 4 || page.PageCount != 2 || page.Page != 1 {
		t.Errorf("second page = %+v", page)
	}

	page, _ = a.LicenseBOM(ctx, pid, model.BOMQuery{Page: 9, PageSize: 3})
	if page.Count != 0 || page.Data == nil {
		t.Errorf("past-the-end page = %+v", page)
	}
}

func TestSecurityBOM(t *testing.T) {
	db := newStore(t)
	pid := newProject(t, db)
	a := New(db, nil, nil, nil)
	publish(t, db, pid, sampleFindings)

	page, err := a.SecurityBOM(context.Background(), pid, model.BOMQuery{})
	if err != nil {
		t.Fatalf("SecurityBOM: %v", err)
	}
	want := []string{"mkdirp>minimist", "optimist>minimist", "lodash", "ws"}
	if page.Total != len(want) {
		t.Fatalf("page = %+v", page)
	}
	for i, p := range want {
		if page.Data[i].Path != p {
			t.Errorf("[%d].Path = %q, want %q", i, page.Data[i].Path, p)
		}
	}

	page, _ = a.SecurityBOM(context.Background(), pid, model.BOMQuery{FilterText: "critical"})
	if page.Total != 2 {
		t.Errorf("severity filter total = %d, want 2", page.Total)
	}
}

func TestLicensesOnly(t *testing.T) {
	db := newStore(t)
	pid := newProject(t, db)
	a := New(db, nil, nil, nil)
	publish(t, db, pid, sampleFindings)

	page, err := a.LicensesOnly(context.Background(), pid, model.BOMQuery{})
	if err != nil {
		t.Fatalf("LicensesOnly: %v", err)
	}
	want := []LicenseSummary{
		{License: "MIT", Status: model.LicenseGreen, Packages: 2},
		{License: "WTFPL", Status: model.LicenseYellow, Packages: 1},
		{License: "unknown", Status: model.LicenseUnknown, Packages: 1},
	}
	if len(page.Data) != len(want) {
		t.Fatalf("LicensesOnly = %+v", page.Data)
	}
	for i := range want {
		if page.Data[i] != want[i] {
			t.Errorf("[%d] = %+v, want %+v", i, page.Data[i], want[i])
		}
	}
}

func TestItemsAreCachedByScan(t *testing.T) {
	db := newStore(t)
	pid := newProject(t, db)
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	keyer := cache.NewDefaultKeyer()
	a := New(db, fc, keyer, nil)
	ctx := context.Background()
	scan := publish(t, db, pid, sampleFindings)

	if _, err := a.HighestLicenseStatus(ctx, pid); err != nil {
		t.Fatalf("HighestLicenseStatus: %v", err)
	}
	if _, ok, _ := fc.Get(ctx, keyer.SummaryKey(scan.ID, "license-items")); !ok {
		t.Fatal("license items not cached")
	}

	// A cached entry is served as is.
	fc.Set(ctx, keyer.SummaryKey(scan.ID, "license-items"), []byte(`[{"displayIdentifier":"x@1","license":"GPL-3.0","status":"red"}]`), 0)
	got, _ := a.HighestLicenseStatus(ctx, pid)
	if got != model.LicenseRed {
		t.Errorf("HighestLicenseStatus = %v, want cached red", got)
	}

	// A new completed scan uses a fresh key.
	publish(t, db, pid, model.Findings{})
	got, _ = a.HighestLicenseStatus(ctx, pid)
	if got != model.LicenseUnknown {
		t.Errorf("HighestLicenseStatus after new scan = %v, want unknown", got)
	}
}
