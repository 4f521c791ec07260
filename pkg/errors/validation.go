package errors

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// ValidatePackageName validates a package name for safety and correctness.
// It rejects names that could be used for path traversal or injection attacks.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters
//   - No path traversal sequences (.., //, etc.)
//   - No null bytes
//   - Maximum length of 256 characters
//
// Ecosystem-specific validation is done by the fetchers.
func ValidatePackageName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPackage, "package name cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeInvalidPackage, "package name too long (max 256 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPackage, "package name contains invalid control characters")
		}
	}

	dangerousPatterns := []string{
		"..",   // Parent directory
		"//",   // Double slash
		"\x00", // Null byte
		"\\",   // Backslash (Windows path)
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidPackage, "package name contains invalid characters: %q", pattern)
		}
	}

	return nil
}

// ValidatePath validates a file path within a repository for safety.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}

// ValidateGitURL validates a repository URL before it reaches git.
// Accepted forms are http(s)://, ssh:// and scp-like git@host:path.
// Anything starting with "-" is rejected so it can never be parsed as a flag.
func ValidateGitURL(raw string) error {
	if raw == "" {
		return New(ErrCodeInvalidInput, "git URL cannot be empty")
	}
	if strings.HasPrefix(raw, "-") {
		return New(ErrCodeInvalidInput, "git URL cannot start with '-'")
	}
	for _, r := range raw {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidInput, "git URL contains invalid characters")
		}
	}

	if scpLikeRE.MatchString(raw) {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Wrap(ErrCodeInvalidInput, err, "invalid git URL")
	}
	switch u.Scheme {
	case "http", "https", "ssh", "git", "file":
	default:
		return New(ErrCodeInvalidInput, "unsupported git URL scheme %q", u.Scheme)
	}
	if u.Scheme != "file" && u.Host == "" {
		return New(ErrCodeInvalidInput, "git URL has no host")
	}
	return nil
}

var scpLikeRE = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:[A-Za-z0-9._/~-]+$`)

// branchRE follows git check-ref-format loosely: no spaces, no "..", no
// leading dash, no trailing ".lock" or "/".
var branchRE = regexp.MustCompile(`^[A-Za-z0-9._/+-]+$`)

// ValidateBranch validates a branch or tag name passed to git.
func ValidateBranch(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "branch cannot be empty")
	}
	if len(name) > 255 {
		return New(ErrCodeInvalidInput, "branch too long (max 255 characters)")
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, "/") ||
		strings.HasSuffix(name, "/") || strings.HasSuffix(name, ".lock") ||
		strings.Contains(name, "..") || strings.Contains(name, "//") {
		return New(ErrCodeInvalidInput, "invalid branch name: %q", name)
	}
	if !branchRE.MatchString(name) {
		return New(ErrCodeInvalidInput, "invalid branch name: %q", name)
	}
	return nil
}

// pythonPackageNameRegex matches valid Python package names (PEP 508).
var pythonPackageNameRegex = regexp.MustCompile(`^([A-Za-z0-9]|[A-Za-z0-9][A-Za-z0-9._-]*[A-Za-z0-9])$`)

// ValidatePythonPackageName validates a Python package name per PEP 508.
func ValidatePythonPackageName(name string) error {
	if err := ValidatePackageName(name); err != nil {
		return err
	}

	if !pythonPackageNameRegex.MatchString(name) {
		return New(ErrCodeInvalidPackage, "invalid Python package name: %q", name)
	}

	return nil
}

// npmPackageNameRegex matches valid npm package names. Legacy packages with
// uppercase letters still exist in lockfiles, so case is not enforced.
var npmPackageNameRegex = regexp.MustCompile(`^(@[A-Za-z0-9-~][A-Za-z0-9-._~]*/)?[A-Za-z0-9-~][A-Za-z0-9-._~]*$`)

// ValidateNpmPackageName validates an npm package name.
func ValidateNpmPackageName(name string) error {
	if err := ValidatePackageName(name); err != nil {
		return err
	}

	if !npmPackageNameRegex.MatchString(name) {
		return New(ErrCodeInvalidPackage, "invalid npm package name: %q", name)
	}

	return nil
}

// mavenCoordinateRegex matches "groupId:artifactId".
var mavenCoordinateRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]+:[A-Za-z0-9_.-]+$`)

// ValidateMavenCoordinate validates a Maven "groupId:artifactId" coordinate.
func ValidateMavenCoordinate(coord string) error {
	if err := ValidatePackageName(coord); err != nil {
		return err
	}
	if !mavenCoordinateRegex.MatchString(coord) {
		return New(ErrCodeInvalidPackage, "invalid Maven coordinate: %q", coord)
	}
	return nil
}
