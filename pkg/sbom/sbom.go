// Package sbom exports the findings of a completed scan as a software bill
// of materials in CycloneDX or SPDX form.
package sbom

import (
	"context"
	"io"
	"slices"
	"strings"

	"github.com/Tim-sandbox/barista/pkg/buildinfo"
	bErrors "github.com/Tim-sandbox/barista/pkg/errors"
	"github.com/Tim-sandbox/barista/pkg/model"
	"github.com/Tim-sandbox/barista/pkg/store"
)

// Format selects the document format.
type Format string

const (
	FormatCycloneDX    Format = "cyclonedx"     // CycloneDX JSON
	FormatCycloneDXXML Format = "cyclonedx-xml" // CycloneDX XML
	FormatSPDX         Format = "spdx"          // SPDX 2.3 JSON
)

// Formats lists every supported format.
var Formats = []Format{FormatCycloneDX, FormatCycloneDXXML, FormatSPDX}

// ParseFormat validates a format name. The empty name selects CycloneDX.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatCycloneDX, nil
	}
	if !slices.Contains(Formats, f) {
		return "", bErrors.New(bErrors.ErrCodeInvalidInput, "unknown bill-of-materials format %q", s)
	}
	return f, nil
}

// ContentType returns the media type of documents in f.
func (f Format) ContentType() string {
	switch f {
	case FormatCycloneDXXML:
		return "application/vnd.cyclonedx+xml"
	case FormatSPDX:
		return "application/spdx+json"
	}
	return "application/vnd.cyclonedx+json"
}

// Extension returns the conventional file extension of f.
func (f Format) Extension() string {
	switch f {
	case FormatCycloneDXXML:
		return ".cdx.xml"
	case FormatSPDX:
		return ".spdx.json"
	}
	return ".cdx.json"
}

// Input is the completed scan a document is built from.
type Input struct {
	Project  *model.Project
	Scan     *model.Scan
	Licenses []model.LicenseItem
	Security []model.SecurityItem
}

// Load reads the latest completed scan of a project. A project without a
// completed scan is a NOT_FOUND error.
func Load(ctx context.Context, db *store.Store, projectID int64) (*Input, error) {
	if _, err := db.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	scan, err := db.LatestCompletedScan(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if scan == nil {
		return nil, bErrors.New(bErrors.ErrCodeNotFound, "project %d has no completed scan", projectID)
	}
	return LoadScan(ctx, db, scan.ID)
}

// LoadProjectScan reads a completed scan of the given project. A scan of
// another project, or one that has not completed, is reported as not found.
func LoadProjectScan(ctx context.Context, db *store.Store, projectID int64, scanID string) (*Input, error) {
	if _, err := db.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	scan, err := db.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if scan.ProjectID != projectID || scan.State != model.ScanCompleted {
		return nil, bErrors.New(bErrors.ErrCodeNotFound, "project %d has no completed scan %s", projectID, scanID)
	}
	return LoadScan(ctx, db, scanID)
}

// LoadScan reads one completed scan by ID.
func LoadScan(ctx context.Context, db *store.Store, scanID string) (*Input, error) {
	scan, err := db.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if scan.State != model.ScanCompleted {
		return nil, bErrors.New(bErrors.ErrCodeInvalidInput, "scan %s is %s, not completed", scanID, scan.State)
	}
	project, err := db.GetProject(ctx, scan.ProjectID)
	if err != nil {
		return nil, err
	}
	licenses, err := db.LicenseItems(ctx, scanID)
	if err != nil {
		return nil, err
	}
	security, err := db.SecurityItems(ctx, scanID)
	if err != nil {
		return nil, err
	}
	return &Input{Project: project, Scan: scan, Licenses: licenses, Security: security}, nil
}

// Write encodes in as a document of format f.
func Write(w io.Writer, f Format, in *Input) error {
	switch f {
	case FormatCycloneDX, FormatCycloneDXXML:
		return writeCycloneDX(w, f, in)
	case FormatSPDX:
		return writeSPDX(w, in)
	}
	return bErrors.New(bErrors.ErrCodeInvalidInput, "unknown bill-of-materials format %q", f)
}

// component is one distinct dependency with every license reported for it.
type component struct {
	ref      string
	name     string
	version  string
	purl     string
	licenses []string
}

// components groups license items by display identifier, sorted by it.
// Security items whose dependency has no license item add a component too.
func components(in *Input) []*component {
	byRef := make(map[string]*component)
	add := func(id string) *component {
		if c, ok := byRef[id]; ok {
			return c
		}
		name, version := splitIdentifier(id)
		c := &component{ref: id, name: name, version: version, purl: purl(in.Project.PackageManager, name, version)}
		byRef[id] = c
		return c
	}
	for _, it := range in.Licenses {
		c := add(it.DisplayIdentifier)
		if it.License != "" && !slices.Contains(c.licenses, it.License) {
			c.licenses = append(c.licenses, it.License)
		}
	}
	for _, it := range in.Security {
		add(it.DisplayIdentifier)
	}

	out := make([]*component, 0, len(byRef))
	for _, c := range byRef {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *component) int { return strings.Compare(a.ref, b.ref) })
	return out
}

// splitIdentifier splits "name@version" at the last '@' so npm scopes
// survive.
func splitIdentifier(id string) (name, version string) {
	if i := strings.LastIndex(id, "@"); i > 0 {
		return id[:i], id[i+1:]
	}
	return id, ""
}

// purl builds a package URL for a dependency.
func purl(pm model.PackageManager, name, version string) string {
	var p string
	switch pm {
	case model.PackageManagerNpm:
		p = "pkg:npm/" + strings.Replace(name, "@", "%40", 1)
	case model.PackageManagerPip:
		p = "pkg:pypi/" + strings.ToLower(strings.ReplaceAll(name, "_", "-"))
	case model.PackageManagerMaven:
		group, artifact, ok := strings.Cut(name, ":")
		if !ok {
			return ""
		}
		p = "pkg:maven/" + group + "/" + artifact
	default:
		return ""
	}
	if version != "" {
		p += "@" + version
	}
	return p
}

func toolVersion() string { return buildinfo.Version }
