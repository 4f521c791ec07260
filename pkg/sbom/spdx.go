package sbom

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	spdxjson "github.com/spdx/tools-golang/json"
	"github.com/spdx/tools-golang/spdx"
	"github.com/spdx/tools-golang/spdx/v2/common"
	spdx23 "github.com/spdx/tools-golang/spdx/v2/v2_3"
)

const noAssertion = "NOASSERTION"

func writeSPDX(w io.Writer, in *Input) error {
	rootID := common.ElementID("Package-" + sanitizeSPDXID(in.Project.Name))
	doc := &spdx23.Document{
		SPDXVersion:    spdx.Version,
		DataLicense:    spdx.DataLicense,
		SPDXIdentifier: common.ElementID("DOCUMENT"),
		DocumentName:   in.Project.Name + "-" + in.Scan.Branch,
		DocumentNamespace: fmt.Sprintf("https://github.com/Tim-sandbox/barista/spdx/%s/%s",
			sanitizeSPDXID(in.Project.Name), uuid.NewSHA1(uuid.NameSpaceURL, []byte("barista:scan:"+in.Scan.ID))),
		CreationInfo: &spdx23.CreationInfo{
			Created:  documentTime(in).Format(time.RFC3339),
			Creators: []common.Creator{{CreatorType: "Tool", Creator: "barista-" + toolVersion()}},
		},
	}

	root := &spdx23.Package{
		PackageName:             in.Project.Name,
		PackageSPDXIdentifier:   rootID,
		PackageVersion:          in.Scan.Branch,
		PackageDownloadLocation: orNoAssertion(in.Project.GitURL),
		FilesAnalyzed:           false,
		PackageLicenseConcluded: noAssertion,
		PackageLicenseDeclared:  noAssertion,
		PackageCopyrightText:    noAssertion,
	}
	doc.Packages = []*spdx23.Package{root}
	doc.Relationships = []*spdx23.Relationship{{
		RefA:         common.MakeDocElementID("", "DOCUMENT"),
		RefB:         common.MakeDocElementID("", string(rootID)),
		Relationship: "DESCRIBES",
	}}

	for i, c := range components(in) {
		id := common.ElementID(fmt.Sprintf("Package-%d-%s", i+1, sanitizeSPDXID(c.ref)))
		license := spdxLicense(c.licenses)
		pkg := &spdx23.Package{
			PackageName:             c.name,
			PackageSPDXIdentifier:   id,
			PackageVersion:          c.version,
			PackageDownloadLocation: noAssertion,
			FilesAnalyzed:           false,
			PackageLicenseConcluded: license,
			PackageLicenseDeclared:  license,
			PackageCopyrightText:    noAssertion,
		}
		if c.purl != "" {
			pkg.PackageExternalReferences = []*spdx23.PackageExternalReference{{
				Category: common.CategoryPackageManager,
				RefType:  "purl",
				Locator:  c.purl,
			}}
		}
		doc.Packages = append(doc.Packages, pkg)
		doc.Relationships = append(doc.Relationships, &spdx23.Relationship{
			RefA:         common.MakeDocElementID("", string(rootID)),
			RefB:         common.MakeDocElementID("", string(id)),
			Relationship: "DEPENDS_ON",
		})
	}

	if err := spdxjson.Write(doc, w); err != nil {
		return fmt.Errorf("encode SPDX: %w", err)
	}
	return nil
}

// spdxLicense joins several licenses into an AND expression.
func spdxLicense(licenses []string) string {
	switch len(licenses) {
	case 0:
		return noAssertion
	case 1:
		return licenses[0]
	}
	parts := make([]string, len(licenses))
	for i, l := range licenses {
		if strings.Contains(l, " ") && !strings.HasPrefix(l, "(") {
			l = "(" + l + ")"
		}
		parts[i] = l
	}
	return strings.Join(parts, " AND ")
}

func orNoAssertion(s string) string {
	if s == "" {
		return noAssertion
	}
	return s
}

// sanitizeSPDXID maps s onto the SPDX identifier alphabet [a-zA-Z0-9.-].
func sanitizeSPDXID(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	return b.String()
}
