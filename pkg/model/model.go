// Package model defines the records shared by the scan runner, the store,
// the aggregator and the metrics engine.
//
// Result items are immutable once their scan completes; every read path
// derives from the latest completed scan of a project.
package model

import (
	"strings"
	"time"
)

// PackageManager is the code that selects a dependency fetcher.
type PackageManager string

const (
	PackageManagerNpm   PackageManager = "npm"
	PackageManagerPip   PackageManager = "pip"
	PackageManagerMaven PackageManager = "maven"
)

// Development types recognised by fleet metrics filters.
const (
	DevelopmentOrganization = "organization"
	DevelopmentCommunity    = "community"
)

// Project is a tracked software project.
type Project struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	GitURL          string         `json:"gitUrl"`
	PackageManager  PackageManager `json:"packageManager"`
	OutputFormat    string         `json:"outputFormat,omitempty"`
	DeploymentType  string         `json:"deploymentType,omitempty"`
	DevelopmentType string         `json:"developmentType"`
	UserID          string         `json:"userId"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

var projectNameReplacer = strings.NewReplacer("(", "-", ")", "-")

// SanitizeProjectName replaces characters that break downstream tooling.
func SanitizeProjectName(name string) string {
	return projectNameReplacer.Replace(strings.TrimSpace(name))
}

// ScanState is the lifecycle state of a scan.
type ScanState string

const (
	ScanPending   ScanState = "pending"
	ScanRunning   ScanState = "running"
	ScanCompleted ScanState = "completed"
	ScanFailed    ScanState = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s ScanState) Terminal() bool {
	return s == ScanCompleted || s == ScanFailed
}

// Scan is one execution of dependency extraction for a project at a branch.
type Scan struct {
	ID          string     `json:"id"`
	ProjectID   int64      `json:"projectId"`
	Branch      string     `json:"branch"`
	State       ScanState  `json:"state"`
	ErrorCode   string     `json:"errorCode,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// LicenseItem is one license finding attached to one dependency.
type LicenseItem struct {
	ID                int64         `json:"id"`
	DisplayIdentifier string        `json:"displayIdentifier"`
	License           string        `json:"license"`
	Status            LicenseStatus `json:"status"`
}

// SecurityItem is one vulnerability finding attached to one dependency.
type SecurityItem struct {
	ID                int64    `json:"id"`
	DisplayIdentifier string   `json:"displayIdentifier"`
	Severity          Severity `json:"severity"`
	Path              string   `json:"path"`
	VulnerabilityID   string   `json:"vulnerabilityId,omitempty"`
	Title             string   `json:"title,omitempty"`
}

// LicenseScanResult is the license result set of one completed scan.
type LicenseScanResult struct {
	ID          string        `json:"id"`
	ScanID      string        `json:"scanId"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt time.Time     `json:"completedAt"`
	Items       []LicenseItem `json:"items"`
}

// SecurityScanResult is the security result set of one completed scan.
type SecurityScanResult struct {
	ID          string         `json:"id"`
	ScanID      string         `json:"scanId"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt time.Time      `json:"completedAt"`
	Items       []SecurityItem `json:"items"`
}

// Findings is what a successful scan attempt publishes atomically.
type Findings struct {
	License  LicenseScanResult
	Security SecurityScanResult
}

// ScanLog is the captured fetcher output of one scan.
type ScanLog struct {
	ScanID    string    `json:"scanId"`
	Log       string    `json:"log"`
	CreatedAt time.Time `json:"createdAt"`
}

// Count is one group of a DistinctBy result.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Page is one page of a bill-of-materials listing.
type Page[T any] struct {
	Data      []T `json:"data"`
	Count     int `json:"count"`
	Total     int `json:"total"`
	Page      int `json:"page"`
	PageCount int `json:"pageCount"`
}

// Default and maximum bill-of-materials page sizes.
const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
)

// BOMQuery selects a page of bill-of-materials entries.
type BOMQuery struct {
	FilterText string // case-insensitive substring over the entry's text fields
	License    string // restrict license entries to one license id
	Page       int    // 0-based
	PageSize   int
}

// Normalize clamps paging parameters into range.
func (q BOMQuery) Normalize() BOMQuery {
	if q.Page < 0 {
		q.Page = 0
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return q
}
