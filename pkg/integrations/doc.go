// Package integrations provides HTTP clients for package registries and
// vulnerability advisory databases.
//
// Each subpackage wraps one upstream API:
//
//   - npm: package metadata from an npm-compatible registry
//   - pypi: package metadata from the PyPI JSON API
//   - maven: POM documents from a Maven repository
//   - osv: vulnerability advisories from OSV.dev
//
// All clients embed [Client], which caches JSON responses through a
// [cache.Cache] and retries transient failures with exponential backoff.
// Base URLs come from configuration so mirrors and private registries work
// the same way as the public ones.
package integrations
