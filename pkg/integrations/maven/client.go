// Package maven reads POM documents from a Maven repository.
package maven

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Tim-sandbox/barista/pkg/cache"
	"github.com/Tim-sandbox/barista/pkg/integrations"
)

// DefaultRepository is Maven Central.
const DefaultRepository = "https://repo1.maven.org/maven2"

// maxParentDepth bounds the parent chain followed when a POM declares no
// license of its own.
const maxParentDepth = 4

// POM is the subset of a Maven project model barista reads.
type POM struct {
	GroupID      string            `xml:"groupId" json:"groupId"`
	ArtifactID   string            `xml:"artifactId" json:"artifactId"`
	Version      string            `xml:"version" json:"version"`
	Parent       *Parent           `xml:"parent" json:"parent,omitempty"`
	Properties   properties        `xml:"properties" json:"-"`
	Props        map[string]string `xml:"-" json:"properties,omitempty"`
	Licenses     []License         `xml:"licenses>license" json:"licenses,omitempty"`
	Dependencies []Dependency      `xml:"dependencies>dependency" json:"dependencies,omitempty"`
	Managed      []Dependency      `xml:"dependencyManagement>dependencies>dependency" json:"managed,omitempty"`
}

// Parent references a parent POM.
type Parent struct {
	GroupID    string `xml:"groupId" json:"groupId"`
	ArtifactID string `xml:"artifactId" json:"artifactId"`
	Version    string `xml:"version" json:"version"`
}

// License is one declared license.
type License struct {
	Name string `xml:"name" json:"name"`
	URL  string `xml:"url" json:"url,omitempty"`
}

// Dependency is one declared dependency.
type Dependency struct {
	GroupID    string `xml:"groupId" json:"groupId"`
	ArtifactID string `xml:"artifactId" json:"artifactId"`
	Version    string `xml:"version" json:"version"`
	Scope      string `xml:"scope" json:"scope,omitempty"`
	Optional   string `xml:"optional" json:"optional,omitempty"`
}

// properties captures arbitrary <properties> children.
type properties struct {
	Entries []struct {
		XMLName xml.Name
		Value   string `xml:",chardata"`
	} `xml:",any"`
}

// ParsePOM decodes a POM document and collects its properties.
func ParsePOM(data []byte) (*POM, error) {
	var pom POM
	if err := xml.Unmarshal(data, &pom); err != nil {
		return nil, err
	}
	pom.Props = make(map[string]string, len(pom.Properties.Entries))
	for _, e := range pom.Properties.Entries {
		pom.Props[e.XMLName.Local] = strings.TrimSpace(e.Value)
	}
	if pom.GroupID == "" && pom.Parent != nil {
		pom.GroupID = pom.Parent.GroupID
	}
	if pom.Version == "" && pom.Parent != nil {
		pom.Version = pom.Parent.Version
	}
	return &pom, nil
}

var propertyRE = regexp.MustCompile(`\$\{([^}]+)\}`)

// Resolve substitutes ${property} references using the POM's own
// properties and project coordinates. Unresolvable references are kept.
func (p *POM) Resolve(s string) string {
	return propertyRE.ReplaceAllStringFunc(s, func(m string) string {
		key := m[2 : len(m)-1]
		switch key {
		case "project.version", "version", "pom.version":
			return p.Version
		case "project.groupId", "groupId", "pom.groupId":
			return p.GroupID
		}
		if v, ok := p.Props[key]; ok && !strings.Contains(v, "${"+key+"}") {
			return v
		}
		return m
	})
}

// ManagedVersion returns the dependencyManagement version of
// groupID:artifactID, resolved against the POM's properties.
func (p *POM) ManagedVersion(groupID, artifactID string) string {
	for _, d := range p.Managed {
		if p.Resolve(d.GroupID) == groupID && p.Resolve(d.ArtifactID) == artifactID {
			return p.Resolve(d.Version)
		}
	}
	return ""
}

// LicenseString joins declared license names with " OR ".
func (p *POM) LicenseString() string {
	var names []string
	for _, l := range p.Licenses {
		if n := strings.TrimSpace(l.Name); n != "" {
			names = append(names, n)
		}
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		return "(" + strings.Join(names, " OR ") + ")"
	}
}

// Client fetches POMs from a repository. Safe for concurrent use.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a client for the repository at baseURL
// (DefaultRepository when empty).
func NewClient(backend cache.Cache, baseURL string, cacheTTL time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultRepository
	}
	return &Client{
		Client:  integrations.NewClient(backend, "maven", cacheTTL, nil),
		baseURL: integrations.BaseURL(baseURL),
	}
}

// FetchPOM retrieves the POM of groupID:artifactID at version.
func (c *Client) FetchPOM(ctx context.Context, groupID, artifactID, version string) (*POM, error) {
	key := groupID + ":" + artifactID + ":" + version
	var pom POM
	err := c.Cached(ctx, key, false, &pom, func() error {
		data, err := c.GetBytes(ctx, c.pomURL(groupID, artifactID, version))
		if err != nil {
			if errors.Is(err, integrations.ErrNotFound) {
				return fmt.Errorf("%w: maven artifact %s", err, key)
			}
			return err
		}
		parsed, err := ParsePOM(data)
		if err != nil {
			return fmt.Errorf("parse pom %s: %w", key, err)
		}
		pom = *parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &pom, nil
}

// FetchLicense returns the declared license of an artifact, following the
// parent chain when the artifact's own POM declares none.
func (c *Client) FetchLicense(ctx context.Context, groupID, artifactID, version string) (string, error) {
	for depth := 0; depth < maxParentDepth; depth++ {
		pom, err := c.FetchPOM(ctx, groupID, artifactID, version)
		if err != nil {
			return "", err
		}
		if l := pom.LicenseString(); l != "" {
			return l, nil
		}
		if pom.Parent == nil {
			return "", nil
		}
		groupID, artifactID, version = pom.Parent.GroupID, pom.Parent.ArtifactID, pom.Parent.Version
	}
	return "", nil
}

func (c *Client) pomURL(groupID, artifactID, version string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s-%s.pom",
		c.baseURL, strings.ReplaceAll(groupID, ".", "/"), artifactID, version, artifactID, version)
}
