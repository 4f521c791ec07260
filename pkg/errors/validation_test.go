package errors

import (
	"testing"
)

func TestValidatePackageName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "requests", false},
		{"valid with dash", "my-package", false},
		{"valid with dot", "my.package", false},
		{"valid scoped npm", "@scope/package", false},

		{"empty", "", true},
		{"too long", string(make([]byte, 300)), true},
		{"path traversal ..", "foo/../bar", true},
		{"path traversal //", "foo//bar", true},
		{"null byte", "foo\x00bar", true},
		{"backslash", "foo\\bar", true},
		{"newline", "foo\nbar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePackageName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePackageName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "packages/web/package.json", false},
		{"empty", "", true},
		{"absolute", "/etc/passwd", true},
		{"traversal", "a/../../b", true},
		{"backslash", "a\\b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateGitURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"https", "https://github.com/org/repo.git", false},
		{"ssh", "ssh://git@github.com/org/repo.git", false},
		{"scp-like", "git@github.com:org/repo.git", false},
		{"file", "file:///srv/git/repo.git", false},

		{"empty", "", true},
		{"flag injection", "--upload-pack=touch /tmp/x", true},
		{"space", "https://github.com/org/repo name", true},
		{"bad scheme", "ftp://example.com/repo", true},
		{"no host", "https:///repo", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGitURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateGitURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateBranch(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"main", "main", false},
		{"nested", "feature/login-form", false},
		{"release", "release-1.2.3", false},

		{"empty", "", true},
		{"flag", "-f", true},
		{"dots", "a..b", true},
		{"lock", "main.lock", true},
		{"trailing slash", "feature/", true},
		{"space", "my branch", true},
		{"tilde", "main~1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBranch(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBranch(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateEcosystemNames(t *testing.T) {
	if err := ValidateNpmPackageName("@babel/core"); err != nil {
		t.Errorf("npm scoped: %v", err)
	}
	if err := ValidateNpmPackageName("JSONStream"); err != nil {
		t.Errorf("npm legacy uppercase: %v", err)
	}
	if err := ValidateNpmPackageName("bad name"); err == nil {
		t.Error("npm name with space should fail")
	}
	if err := ValidatePythonPackageName("zope.interface"); err != nil {
		t.Errorf("python: %v", err)
	}
	if err := ValidatePythonPackageName("-bad"); err == nil {
		t.Error("python leading dash should fail")
	}
	if err := ValidateMavenCoordinate("com.google.guava:guava"); err != nil {
		t.Errorf("maven: %v", err)
	}
	if err := ValidateMavenCoordinate("guava"); err == nil {
		t.Error("maven coordinate without group should fail")
	}
}
