package stats

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/Tim-sandbox/barista/pkg/aggregate"
	bErrors "github.com/Tim-sandbox/barista/pkg/errors"
	"github.com/Tim-sandbox/barista/pkg/model"
)

// Badge kinds.
const (
	BadgeLicenseState    = "licensestate"
	BadgeSecurityState   = "securitystate"
	BadgeVulnerabilities = "vulnerabilities"
	BadgeComponents      = "components"
)

// BadgeKinds lists every badge kind in display order.
var BadgeKinds = []string{BadgeLicenseState, BadgeSecurityState, BadgeVulnerabilities, BadgeComponents}

const (
	colorUnknown    = "lightgrey"
	colorComponents = "#edb"
	labelColor      = "#855"
	dateLayout      = "Mon Jan 02 2006"
)

// Badge is the value of one badge in the shields.io endpoint schema.
type Badge struct {
	SchemaVersion int    `json:"schemaVersion"`
	Label         string `json:"label"`
	Message       string `json:"message"`
	Color         string `json:"color"`
	LabelColor    string `json:"labelColor"`
}

// newBadge builds a badge. An unknown status forces the unknown colour and
// message.
func newBadge(label, message, color string) Badge {
	if color == "" || color == "unknown" {
		color, message = colorUnknown, "unknown"
	}
	return Badge{SchemaVersion: 1, Label: label, Message: message, Color: color, LabelColor: labelColor}
}

// severityColor maps a severity rollup to a traffic-light colour.
func severityColor(s model.Severity) string {
	switch {
	case s >= model.SeverityHigh:
		return "red"
	case s >= model.SeverityModerate:
		return "yellow"
	case s == model.SeverityLow:
		return "green"
	}
	return "unknown"
}

// Badge computes one badge of a project. An unknown project yields the
// unknown badge of that kind.
func (e *Engine) Badge(ctx context.Context, projectID int64, kind string) (Badge, error) {
	switch kind {
	case BadgeLicenseState, BadgeSecurityState, BadgeVulnerabilities, BadgeComponents:
	default:
		return Badge{}, bErrors.New(bErrors.ErrCodeInvalidInput, "unknown badge %q", kind)
	}

	scan, err := e.agg.LatestCompletedScan(ctx, projectID)
	if err != nil {
		return Badge{}, err
	}
	date := "unknown"
	if scan != nil {
		date = scan.CreatedAt.Format(dateLayout)
	}

	switch kind {
	case BadgeLicenseState:
		s, err := e.agg.HighestLicenseStatus(ctx, projectID)
		if err != nil {
			return Badge{}, err
		}
		return newBadge("barista license state", date, s.String()), nil

	case BadgeSecurityState:
		s, err := e.agg.HighestSeverity(ctx, projectID)
		if err != nil {
			return Badge{}, err
		}
		return newBadge("barista security state", date, severityColor(s)), nil

	case BadgeVulnerabilities:
		s, err := e.agg.HighestSeverity(ctx, projectID)
		if err != nil {
			return Badge{}, err
		}
		counts, err := e.agg.DistinctBy(ctx, projectID, model.DimensionSecurity, aggregate.KeySeverity)
		if err != nil {
			return Badge{}, err
		}
		return newBadge("barista vulnerabilities", vulnerabilitySummary(counts), severityColor(s)), nil
	}

	if scan == nil {
		return newBadge("barista open source components", "", ""), nil
	}
	items, err := e.store.LicenseItems(ctx, scan.ID)
	if err != nil {
		return Badge{}, err
	}
	return newBadge("barista open source components", strconv.Itoa(len(items)), colorComponents), nil
}

// Badges computes every badge of a project, keyed by kind.
func (e *Engine) Badges(ctx context.Context, projectID int64) (map[string]Badge, error) {
	out := make(map[string]Badge, len(BadgeKinds))
	for _, kind := range BadgeKinds {
		b, err := e.Badge(ctx, projectID, kind)
		if err != nil {
			return nil, err
		}
		out[kind] = b
	}
	return out, nil
}

// vulnerabilitySummary renders "critical:2 high:1", most severe first, or
// "none detected".
func vulnerabilitySummary(counts []model.Count) string {
	if len(counts) == 0 {
		return "none detected"
	}
	sorted := slices.Clone(counts)
	slices.SortStableFunc(sorted, func(a, b model.Count) int {
		return int(model.ParseSeverity(b.Key)) - int(model.ParseSeverity(a.Key))
	})
	parts := make([]string, len(sorted))
	for i, c := range sorted {
		parts[i] = c.Key + ":" + strconv.Itoa(c.Count)
	}
	return strings.Join(parts, " ")
}
