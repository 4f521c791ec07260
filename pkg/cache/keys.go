package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Keyer builds cache keys. Implementations must be deterministic.
type Keyer interface {
	// HTTPKey is the key for a registry response.
	HTTPKey(namespace, key string) string

	// SummaryKey is the key for an aggregation summary of one completed
	// scan. parts distinguishes summaries of the same scan.
	SummaryKey(scanID, kind string, parts ...any) string
}

// DefaultKeyer lays keys out as "<family>:<scope>:<name>", so a family can
// be cleared with a single "<family>:*" pattern.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the standard Keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// HTTPKey returns "http:<namespace>:<key>".
func (DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}

// SummaryKey returns "summary:<scan>:<kind>", followed by a digest of
// parts when any are given.
func (DefaultKeyer) SummaryKey(scanID, kind string, parts ...any) string {
	key := "summary:" + scanID + ":" + kind
	if len(parts) == 0 {
		return key
	}
	data, _ := json.Marshal(parts)
	return key + ":" + digest(data)
}

// digest is the hex SHA-256 of data.
func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
