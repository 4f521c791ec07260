// Package license classifies declared licenses into license statuses.
//
// A [Policy] maps SPDX identifiers to green, yellow or red. Identifiers not
// on any list are yellow; an empty or NOASSERTION license is unknown. SPDX
// expressions are evaluated per operator: OR takes the most permissive
// choice, AND the most restrictive.
package license

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Tim-sandbox/barista/pkg/config"
	"github.com/Tim-sandbox/barista/pkg/model"
)

// Default lists used when the configuration names no licenses at all.
var (
	DefaultGreen = []string{
		"MIT", "MIT-0", "Apache-2.0", "BSD-2-Clause", "BSD-3-Clause", "ISC", "0BSD",
		"Unlicense", "CC0-1.0", "Zlib", "Python-2.0", "PSF-2.0", "BlueOak-1.0.0", "BSL-1.0",
	}
	DefaultYellow = []string{
		"LGPL-2.1-only", "LGPL-2.1-or-later", "LGPL-3.0-only", "LGPL-3.0-or-later",
		"MPL-2.0", "EPL-1.0", "EPL-2.0", "CDDL-1.0", "CDDL-1.1", "CC-BY-4.0",
	}
	DefaultRed = []string{
		"GPL-2.0-only", "GPL-2.0-or-later", "GPL-3.0-only", "GPL-3.0-or-later",
		"AGPL-3.0-only", "AGPL-3.0-or-later", "SSPL-1.0", "CC-BY-NC-4.0",
	}
)

// aliases maps common non-SPDX spellings found in registries to SPDX ids.
var aliases = map[string]string{
	"MIT LICENSE":                           "MIT",
	"THE MIT LICENSE":                       "MIT",
	"APACHE 2.0":                            "Apache-2.0",
	"APACHE-2":                              "Apache-2.0",
	"APACHE LICENSE 2.0":                    "Apache-2.0",
	"APACHE LICENSE, VERSION 2.0":           "Apache-2.0",
	"THE APACHE LICENSE, VERSION 2.0":       "Apache-2.0",
	"APACHE SOFTWARE LICENSE":               "Apache-2.0",
	"BSD LICENSE":                           "BSD-3-Clause",
	"NEW BSD LICENSE":                       "BSD-3-Clause",
	"BSD":                                   "BSD-3-Clause",
	"ISC LICENSE":                           "ISC",
	"ISC LICENSE (ISCL)":                    "ISC",
	"GPL-2.0":                               "GPL-2.0-only",
	"GPL-3.0":                               "GPL-3.0-only",
	"GPLV3":                                 "GPL-3.0-only",
	"GNU GENERAL PUBLIC LICENSE V3 (GPLV3)": "GPL-3.0-only",
	"LGPL-2.1":                              "LGPL-2.1-only",
	"LGPL-3.0":                              "LGPL-3.0-only",
	"AGPL-3.0":                              "AGPL-3.0-only",
	"MOZILLA PUBLIC LICENSE 2.0 (MPL 2.0)":  "MPL-2.0",
	"ECLIPSE PUBLIC LICENSE 2.0":            "EPL-2.0",
	"PYTHON SOFTWARE FOUNDATION LICENSE":    "PSF-2.0",
}

// Policy classifies licenses. Safe for concurrent use once built.
type Policy struct {
	status map[string]model.LicenseStatus
}

// New builds a policy from configured lists, falling back to the default
// lists when all three are empty. A license on more than one list is an
// error.
func New(cfg config.Licenses) (*Policy, error) {
	if len(cfg.Green)+len(cfg.Yellow)+len(cfg.Red) == 0 {
		cfg = config.Licenses{Green: DefaultGreen, Yellow: DefaultYellow, Red: DefaultRed}
	}
	p := &Policy{status: make(map[string]model.LicenseStatus)}
	for _, l := range []struct {
		ids    []string
		status model.LicenseStatus
	}{
		{cfg.Green, model.LicenseGreen},
		{cfg.Yellow, model.LicenseYellow},
		{cfg.Red, model.LicenseRed},
	} {
		for _, id := range l.ids {
			key := strings.ToUpper(strings.TrimSpace(id))
			if prev, ok := p.status[key]; ok && prev != l.status {
				return nil, fmt.Errorf("license %q appears in both %s and %s lists", id, prev, l.status)
			}
			p.status[key] = l.status
		}
	}
	return p, nil
}

// MustDefault returns the policy built from the default lists.
func MustDefault() *Policy {
	p, err := New(config.Licenses{})
	if err != nil {
		panic(err)
	}
	return p
}

var operatorRE = regexp.MustCompile(`(?i)\s+(OR|AND)\s+`)

// Classify returns the status of a declared license or SPDX expression.
func (p *Policy) Classify(license string) model.LicenseStatus {
	expr := strings.TrimSpace(license)
	if isUnknown(expr) {
		return model.LicenseUnknown
	}
	return p.eval(expr)
}

// eval handles one level of OR/AND, respecting parentheses.
func (p *Policy) eval(expr string) model.LicenseStatus {
	expr = trimParens(strings.TrimSpace(expr))

	if parts := splitTop(expr, "OR"); len(parts) > 1 {
		best := model.LicenseUnknown
		for _, part := range parts {
			s := p.eval(part)
			if s != model.LicenseUnknown && (best == model.LicenseUnknown || s < best) {
				best = s
			}
		}
		return best
	}
	if parts := splitTop(expr, "AND"); len(parts) > 1 {
		statuses := make([]model.LicenseStatus, 0, len(parts))
		for _, part := range parts {
			statuses = append(statuses, p.eval(part))
		}
		return model.Highest(statuses)
	}
	return p.term(expr)
}

func (p *Policy) term(id string) model.LicenseStatus {
	if isUnknown(id) {
		return model.LicenseUnknown
	}
	key := strings.ToUpper(id)
	if s, ok := p.status[key]; ok {
		return s
	}
	if alias, ok := aliases[key]; ok {
		if s, ok := p.status[strings.ToUpper(alias)]; ok {
			return s
		}
	}
	if base, _, ok := strings.Cut(key, " WITH "); ok {
		return p.term(strings.TrimSpace(base))
	}
	if base, ok := strings.CutSuffix(key, "+"); ok {
		return p.term(base + "-OR-LATER")
	}
	return model.LicenseYellow
}

// splitTop splits expr on op outside parentheses.
func splitTop(expr, op string) []string {
	var parts []string
	start := 0
	for _, loc := range operatorRE.FindAllStringSubmatchIndex(expr, -1) {
		if !strings.EqualFold(expr[loc[2]:loc[3]], op) || parenDepth(expr[:loc[0]]) != 0 {
			continue
		}
		parts = append(parts, expr[start:loc[0]])
		start = loc[1]
	}
	if len(parts) == 0 {
		return nil
	}
	return append(parts, expr[start:])
}

func parenDepth(s string) int {
	return strings.Count(s, "(") - strings.Count(s, ")")
}

// trimParens removes parentheses that enclose the whole expression.
func trimParens(expr string) string {
	for strings.HasPrefix(expr, "(") && strings.HasSuffix(expr, ")") {
		inner := expr[1 : len(expr)-1]
		if parenDepth(inner) != 0 || !balanced(inner) {
			return expr
		}
		expr = strings.TrimSpace(inner)
	}
	return expr
}

func balanced(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func isUnknown(id string) bool {
	switch strings.ToUpper(id) {
	case "", "NOASSERTION", "NONE", "UNKNOWN", "UNLICENSED", "SEE LICENSE IN LICENSE":
		return true
	}
	return strings.HasPrefix(strings.ToUpper(id), "SEE LICENSE IN")
}
