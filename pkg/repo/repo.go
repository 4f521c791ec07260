// Package repo reaches project source repositories through git.
//
// Credentials are injected into clone URLs by a [CredentialFunc] and never
// leave this package in clear text: every command line, log line and error
// passes through [Redact].
package repo

import (
	"context"
	"io"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/Tim-sandbox/barista/pkg/command"
	"github.com/Tim-sandbox/barista/pkg/config"
	"github.com/Tim-sandbox/barista/pkg/errors"
)

// RefKind distinguishes branches from tags.
type RefKind string

const (
	RefBranch RefKind = "branch"
	RefTag    RefKind = "tag"
)

// Ref is one branch or tag of a remote repository.
type Ref struct {
	Name   string  `json:"name"`
	Kind   RefKind `json:"kind"`
	Commit string  `json:"commit"`
}

// Accessor is the repository surface the scan runner and the API use.
type Accessor interface {
	// ListRefs returns the branches and tags of the remote. Failures are
	// REPOSITORY_ACCESS errors, never an empty list.
	ListRefs(ctx context.Context, gitURL string) ([]Ref, error)

	// Validate reports whether gitURL is well formed and reachable.
	Validate(ctx context.Context, gitURL string) error

	// Checkout clones branch (the default branch when empty) into dir,
	// which must not exist yet. Command output is written to logw.
	Checkout(ctx context.Context, gitURL, branch, dir string, logw io.Writer) error
}

// CredentialFunc turns a repository URL into the URL used for git
// commands, typically by adding credentials.
type CredentialFunc func(gitURL string) (string, error)

// NoCredentials returns the URL unchanged.
func NoCredentials(gitURL string) (string, error) { return gitURL, nil }

// FromConfig injects the first credential whose host matches the URL's
// host into http(s) URLs. Other URLs are returned unchanged.
func FromConfig(creds []config.Credential) CredentialFunc {
	return func(gitURL string) (string, error) {
		u, err := url.Parse(gitURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.User != nil {
			return gitURL, nil
		}
		for _, c := range creds {
			if !strings.EqualFold(c.Host, u.Hostname()) || c.Token == "" {
				continue
			}
			user := c.Username
			if user == "" {
				user = "oauth2"
			}
			u.User = url.UserPassword(user, c.Token)
			return u.String(), nil
		}
		return gitURL, nil
	}
}

var userinfoRE = regexp.MustCompile(`(\w+://)([^/@\s:]+)(:[^/@\s]*)?@`)

// Redact replaces passwords and tokens embedded in URLs within s. A
// username with a password keeps the username; a lone userinfo is taken to
// be a token and replaced whole.
func Redact(s string) string {
	return userinfoRE.ReplaceAllStringFunc(s, func(m string) string {
		sub := userinfoRE.FindStringSubmatch(m)
		if sub[3] != "" {
			return sub[1] + sub[2] + ":***@"
		}
		return sub[1] + "***@"
	})
}

// Git implements Accessor with the git binary.
type Git struct {
	Executor    command.Executor
	Credentials CredentialFunc
	Logger      *log.Logger
}

// NewGit returns a Git accessor. Nil arguments select the OS executor,
// no credentials and a discarding logger.
func NewGit(exec command.Executor, creds CredentialFunc, logger *log.Logger) *Git {
	if exec == nil {
		exec = command.OS{}
	}
	if creds == nil {
		creds = NoCredentials
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Git{Executor: exec, Credentials: creds, Logger: logger}
}

// ListRefs implements Accessor.
func (g *Git) ListRefs(ctx context.Context, gitURL string) ([]Ref, error) {
	out, err := g.lsRemote(ctx, gitURL, "--heads", "--tags")
	if err != nil {
		return nil, err
	}
	return parseRefs(string(out)), nil
}

// Validate implements Accessor.
func (g *Git) Validate(ctx context.Context, gitURL string) error {
	if err := errors.ValidateGitURL(gitURL); err != nil {
		return err
	}
	_, err := g.lsRemote(ctx, gitURL, "--heads")
	return err
}

// Checkout implements Accessor.
func (g *Git) Checkout(ctx context.Context, gitURL, branch, dir string, logw io.Writer) error {
	if err := errors.ValidateGitURL(gitURL); err != nil {
		return err
	}
	if branch != "" {
		if err := errors.ValidateBranch(branch); err != nil {
			return err
		}
	}
	authURL, err := g.Credentials(gitURL)
	if err != nil {
		return errors.Wrap(errors.ErrCodeRepositoryAccess, err, "resolve credentials for %s", Redact(gitURL))
	}

	args := []string{"clone", "--depth", "1", "--quiet"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, "--", authURL, dir)

	g.Logger.Debug("cloning repository", "url", Redact(gitURL), "branch", branch)
	if _, err := g.Executor.Run(ctx, command.Spec{Name: "git", Args: args, Log: logw, Redact: Redact}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(errors.ErrCodeRepositoryAccess, redactErr(err), "clone %s at %q", Redact(gitURL), branch)
	}
	return nil
}

func (g *Git) lsRemote(ctx context.Context, gitURL string, flags ...string) ([]byte, error) {
	if err := errors.ValidateGitURL(gitURL); err != nil {
		return nil, err
	}
	authURL, err := g.Credentials(gitURL)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRepositoryAccess, err, "cannot reach repository")
	}
	args := append([]string{"ls-remote"}, flags...)
	args = append(args, "--", authURL)
	out, err := g.Executor.Run(ctx, command.Spec{Name: "git", Args: args, Redact: Redact})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.Logger.Warn("ls-remote failed", "url", Redact(gitURL), "error", Redact(err.Error()))
		return nil, errors.Wrap(errors.ErrCodeRepositoryAccess, redactErr(err), "cannot reach repository")
	}
	return out, nil
}

// parseRefs reads "<sha>\t<ref>" lines. Peeled tag entries (^{}) replace
// the tag object with the commit it points to.
func parseRefs(out string) []Ref {
	byName := make(map[string]*Ref)
	var order []string
	for _, line := range strings.Split(out, "\n") {
		sha, ref, ok := strings.Cut(strings.TrimSpace(line), "\t")
		if !ok {
			continue
		}
		var r Ref
		switch {
		case strings.HasPrefix(ref, "refs/heads/"):
			r = Ref{Name: strings.TrimPrefix(ref, "refs/heads/"), Kind: RefBranch, Commit: sha}
		case strings.HasPrefix(ref, "refs/tags/"):
			name := strings.TrimPrefix(ref, "refs/tags/")
			peeled := strings.HasSuffix(name, "^{}")
			name = strings.TrimSuffix(name, "^{}")
			r = Ref{Name: name, Kind: RefTag, Commit: sha}
			if existing, ok := byName[string(RefTag)+name]; ok {
				if peeled {
					existing.Commit = sha
				}
				continue
			}
		default:
			continue
		}
		key := string(r.Kind) + r.Name
		if _, ok := byName[key]; ok {
			continue
		}
		byName[key] = &r
		order = append(order, key)
	}

	refs := make([]Ref, 0, len(order))
	for _, k := range order {
		refs = append(refs, *byName[k])
	}
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].Kind != refs[j].Kind {
			return refs[i].Kind == RefBranch
		}
		return refs[i].Name < refs[j].Name
	})
	return refs
}

// Branches filters refs to branch names.
func Branches(refs []Ref) []string {
	var out []string
	for _, r := range refs {
		if r.Kind == RefBranch {
			out = append(out, r.Name)
		}
	}
	return out
}

type redactedError struct{ msg string }

func (e redactedError) Error() string { return e.msg }

func redactErr(err error) error { return redactedError{Redact(err.Error())} }

func mkdir(dir string) error { return os.MkdirAll(dir, 0o755) }
