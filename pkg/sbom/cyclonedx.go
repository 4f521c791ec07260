package sbom

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/google/uuid"

	"github.com/Tim-sandbox/barista/pkg/model"
)

var spdxIDRE = regexp.MustCompile(`^[A-Za-z0-9.+-]+$`)

func writeCycloneDX(w io.Writer, f Format, in *Input) error {
	bom := cdx.NewBOM()
	bom.SerialNumber = "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte("barista:scan:"+in.Scan.ID)).String()
	bom.Version = 1
	bom.Metadata = &cdx.Metadata{
		Timestamp: documentTime(in).Format(time.RFC3339),
		Tools: &cdx.ToolsChoice{
			Components: &[]cdx.Component{{
				Type:    cdx.ComponentTypeApplication,
				Name:    "barista",
				Version: toolVersion(),
			}},
		},
		Component: &cdx.Component{
			Type:    cdx.ComponentTypeApplication,
			BOMRef:  "project:" + in.Project.Name,
			Name:    in.Project.Name,
			Version: in.Scan.Branch,
			ExternalReferences: &[]cdx.ExternalReference{
				{Type: cdx.ERTypeVCS, URL: in.Project.GitURL},
			},
		},
		Properties: &[]cdx.Property{
			{Name: "barista:scan", Value: in.Scan.ID},
			{Name: "barista:branch", Value: in.Scan.Branch},
		},
	}

	comps := components(in)
	list := make([]cdx.Component, 0, len(comps))
	for _, c := range comps {
		comp := cdx.Component{
			Type:       cdx.ComponentTypeLibrary,
			BOMRef:     c.ref,
			Name:       c.name,
			Version:    c.version,
			PackageURL: c.purl,
		}
		if len(c.licenses) > 0 {
			choices := make(cdx.Licenses, 0, len(c.licenses))
			for _, l := range c.licenses {
				choices = append(choices, licenseChoice(l))
			}
			comp.Licenses = &choices
		}
		list = append(list, comp)
	}
	bom.Components = &list

	if vulns := cycloneDXVulnerabilities(in.Security); len(vulns) > 0 {
		bom.Vulnerabilities = &vulns
	}

	format := cdx.BOMFileFormatJSON
	if f == FormatCycloneDXXML {
		format = cdx.BOMFileFormatXML
	}
	enc := cdx.NewBOMEncoder(w, format)
	enc.SetPretty(true)
	if err := enc.Encode(bom); err != nil {
		return fmt.Errorf("encode CycloneDX: %w", err)
	}
	return nil
}

// licenseChoice uses the license as an SPDX id when it looks like one, as
// an expression when it combines several, and as a name otherwise.
func licenseChoice(l string) cdx.LicenseChoice {
	switch {
	case strings.Contains(l, " OR ") || strings.Contains(l, " AND "):
		return cdx.LicenseChoice{Expression: l}
	case spdxIDRE.MatchString(l):
		return cdx.LicenseChoice{License: &cdx.License{ID: l}}
	}
	return cdx.LicenseChoice{License: &cdx.License{Name: l}}
}

// cycloneDXVulnerabilities merges security items that share an advisory and
// a dependency, keeping each dependency path as a property.
func cycloneDXVulnerabilities(items []model.SecurityItem) []cdx.Vulnerability {
	var (
		out   []cdx.Vulnerability
		index = make(map[string]int)
	)
	for _, it := range items {
		id := it.VulnerabilityID
		if id == "" {
			id = "unidentified"
		}
		key := id + "/" + it.DisplayIdentifier
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, cdx.Vulnerability{
				BOMRef:      key,
				ID:          id,
				Description: it.Title,
				Ratings:     &[]cdx.VulnerabilityRating{{Severity: cycloneDXSeverity(it.Severity)}},
				Affects:     &[]cdx.Affects{{Ref: it.DisplayIdentifier}},
				Properties:  &[]cdx.Property{},
			})
		}
		if it.Path != "" {
			props := out[i].Properties
			*props = append(*props, cdx.Property{Name: "barista:path", Value: it.Path})
		}
	}
	for i := range out {
		if len(*out[i].Properties) == 0 {
			out[i].Properties = nil
		}
	}
	return out
}

func cycloneDXSeverity(s model.Severity) cdx.Severity {
	switch s {
	case model.SeverityCritical:
		return cdx.SeverityCritical
	case model.SeverityHigh:
		return cdx.SeverityHigh
	case model.SeverityMedium, model.SeverityModerate:
		return cdx.SeverityMedium
	case model.SeverityLow:
		return cdx.SeverityLow
	}
	return cdx.SeverityUnknown
}

func documentTime(in *Input) time.Time {
	if in.Scan.CompletedAt != nil {
		return in.Scan.CompletedAt.UTC()
	}
	return in.Scan.CreatedAt.UTC()
}
