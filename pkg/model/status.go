package model

import (
	"fmt"
	"strings"
)

// Ranked is implemented by the per-dimension status enumerations. The zero
// value of every Ranked type is its unknown sentinel.
type Ranked interface {
	~int
	String() string
}

// Highest returns the maximum of values under the type's rank order.
// An empty input returns the zero value (unknown), never the lowest real rank.
func Highest[T Ranked](values []T) T {
	var top T
	for _, v := range values {
		if v > top {
			top = v
		}
	}
	return top
}

// LicenseStatus classifies a dependency's license against the policy.
type LicenseStatus int

const (
	LicenseUnknown LicenseStatus = iota
	LicenseGreen
	LicenseYellow
	LicenseRed
)

var licenseStatusNames = [...]string{"unknown", "green", "yellow", "red"}

func (s LicenseStatus) String() string {
	if s < 0 || int(s) >= len(licenseStatusNames) {
		return "unknown"
	}
	return licenseStatusNames[s]
}

// ParseLicenseStatus parses a status name, case-insensitively.
// Unrecognized names map to LicenseUnknown.
func ParseLicenseStatus(s string) LicenseStatus {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range licenseStatusNames {
		if name == s {
			return LicenseStatus(i)
		}
	}
	return LicenseUnknown
}

func (s LicenseStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *LicenseStatus) UnmarshalText(b []byte) error {
	*s = ParseLicenseStatus(string(b))
	return nil
}

// Severity is the security classification of a vulnerability finding.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityLow
	SeverityModerate
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{"unknown", "low", "moderate", "medium", "high", "critical"}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return "unknown"
	}
	return severityNames[s]
}

// ParseSeverity parses a severity name, case-insensitively. "info" and
// "none" are treated as unknown.
func ParseSeverity(s string) Severity {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range severityNames {
		if name == s {
			return Severity(i)
		}
	}
	return SeverityUnknown
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	*s = ParseSeverity(string(b))
	return nil
}

// Dimension selects license or security findings.
type Dimension string

const (
	DimensionLicense  Dimension = "license"
	DimensionSecurity Dimension = "security"
)

// ParseDimension validates a dimension name.
func ParseDimension(s string) (Dimension, error) {
	switch d := Dimension(strings.ToLower(strings.TrimSpace(s))); d {
	case DimensionLicense, DimensionSecurity:
		return d, nil
	}
	return "", fmt.Errorf("unknown dimension %q", s)
}

// Rollup is the highest status of one dimension, carried with its rank so
// callers can compare rollups of either dimension uniformly.
type Rollup struct {
	Dimension Dimension `json:"dimension"`
	Rank      int       `json:"rank"`
	Status    string    `json:"status"`
}

// Unknown reports whether the rollup is the unknown sentinel.
func (r Rollup) Unknown() bool { return r.Rank == 0 }

// LicenseRollup wraps a license status as a Rollup.
func LicenseRollup(s LicenseStatus) Rollup {
	return Rollup{Dimension: DimensionLicense, Rank: int(s), Status: s.String()}
}

// SecurityRollup wraps a severity as a Rollup.
func SecurityRollup(s Severity) Rollup {
	return Rollup{Dimension: DimensionSecurity, Rank: int(s), Status: s.String()}
}
