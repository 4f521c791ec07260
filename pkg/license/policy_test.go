package license

import (
	"testing"

	"github.com/Tim-sandbox/barista/pkg/config"
	"github.com/Tim-sandbox/barista/pkg/model"
)

func TestClassifyDefaultPolicy(t *testing.T) {
	p := MustDefault()
	tests := []struct {
		license string
		want    model.LicenseStatus
	}{
		{"MIT", model.LicenseGreen},
		{"mit", model.LicenseGreen},
		{"MIT License", model.LicenseGreen},
		{"Apache License, Version 2.0", model.LicenseGreen},
		{"MPL-2.0", model.LicenseYellow},
		{"GPL-3.0-only", model.LicenseRed},
		{"GPL-2.0+", model.LicenseRed},
		{"GPL-2.0-only WITH Classpath-exception-2.0", model.LicenseRed},
		{"Some Custom License", model.LicenseYellow},
		{"", model.LicenseUnknown},
		{"NOASSERTION", model.LicenseUnknown},
		{"SEE LICENSE IN LICENSE.md", model.LicenseUnknown},
		{"(MIT OR GPL-3.0-only)", model.LicenseGreen},
		{"MIT AND GPL-3.0-only", model.LicenseRed},
		{"(MIT OR Apache-2.0) AND MPL-2.0", model.LicenseYellow},
		{"MIT OR NOASSERTION", model.LicenseGreen},
	}
	for _, tt := range tests {
		if got := p.Classify(tt.license); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.license, got, tt.want)
		}
	}
}

func TestConfiguredPolicy(t *testing.T) {
	p, err := New(config.Licenses{Green: []string{"GPL-3.0-only"}, Red: []string{"MIT"}})
	if err != nil {
		t.Fatal(err)
	}
	if p.Classify("MIT") != model.LicenseRed || p.Classify("GPL-3.0-only") != model.LicenseGreen {
		t.Error("configured lists should replace the defaults")
	}
	if p.Classify("Apache-2.0") != model.LicenseYellow {
		t.Error("unlisted license should be yellow")
	}
}

func TestPolicyOverlap(t *testing.T) {
	if _, err := New(config.Licenses{Green: []string{"MIT"}, Red: []string{"mit"}}); err == nil {
		t.Error("expected error for a license on two lists")
	}
}

func TestTrimParens(t *testing.T) {
	tests := map[string]string{
		"(MIT)":              "MIT",
		"((MIT OR ISC))":     "MIT OR ISC",
		"(MIT) AND (ISC)":    "(MIT) AND (ISC)",
		"ISC LICENSE (ISCL)": "ISC LICENSE (ISCL)",
	}
	for in, want := range tests {
		if got := trimParens(in); got != want {
			t.Errorf("trimParens(%q) = %q, want %q", in, got, want)
		}
	}
}
