// Package guardrails refuses dangerous staging sources. Pointing the app
// directory at /, /etc, or a credentials directory would copy the host's
// secrets into the image; these paths are rejected before any step runs.
package guardrails

import (
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	appconfig "github.com/imgforge/imgforge/internal/apps/imgforge/config"
	"github.com/imgforge/imgforge/internal/logs"
)

var ErrForbiddenSource = errors.New("path is not allowed as a staging source")

// A forbidden rule: either an exact path or a prefix covering all children.
type forbiddenRule struct {
	Path   string
	Exact  bool
	Prefix bool
}

var forbiddenRules []forbiddenRule

func init() {
	home := mustHome()

	expand := func(p string) string {
		if strings.HasPrefix(p, "~/") {
			return filepath.Join(home, p[2:])
		}
		return p
	}

	raw := []forbiddenRule{
		// System directories. Staging any of these would embed the host OS
		// into the image.
		{Path: "/", Exact: true},
		{Path: "/bin", Prefix: true},
		{Path: "/sbin", Prefix: true},
		{Path: "/lib", Prefix: true},
		{Path: "/lib64", Prefix: true},
		{Path: "/usr", Prefix: true},
		{Path: "/etc", Prefix: true},
		{Path: "/dev", Prefix: true},
		{Path: "/proc", Prefix: true},
		{Path: "/sys", Prefix: true},
		{Path: "/run", Prefix: true},
		{Path: "/var", Prefix: true},
		{Path: "/boot", Prefix: true},

		// Container sockets.
		{Path: "/var/run/docker.sock", Exact: true},
		{Path: "/run/docker.sock", Exact: true},
		{Path: "/run/podman/podman.sock", Exact: true},
		{Path: "/run/containerd/containerd.sock", Exact: true},

		// Credential directories. Never image material, whatever the
		// ignore file says.
		{Path: expand("~/.ssh"), Prefix: true},
		{Path: expand("~/.gnupg"), Prefix: true},
		{Path: expand("~/.aws"), Prefix: true},
		{Path: expand("~/.azure"), Prefix: true},
		{Path: expand("~/.docker"), Prefix: true},
		{Path: expand("~/.kube"), Prefix: true},
		{Path: expand("~/.git-credentials"), Exact: true},
		{Path: expand("~/.config/gh"), Prefix: true},
		{Path: expand("~/.config/gcloud"), Prefix: true},
		{Path: expand("~/.local/share/keyrings"), Prefix: true},

		// Our own state: the layer store must never stage itself.
		{Path: expand(appconfig.ConfigBasePath()), Prefix: true},
	}

	for _, r := range raw {
		r.Path = filepath.Clean(r.Path)
		forbiddenRules = append(forbiddenRules, r)
	}
}

func mustHome() string {
	usr, err := user.Current()
	if err != nil {
		panic(err)
	}
	return usr.HomeDir
}

// CheckStagingSource resolves rawPath (symlinks included) and returns
// ErrForbiddenSource when it falls under a forbidden rule. An unresolvable
// path is also an error: a broken source is never stageable.
func CheckStagingSource(rawPath string) error {
	if rawPath == "" {
		rawPath = "."
	}

	p, err := resolveStrict(rawPath)
	if err != nil {
		return err
	}

	for _, rule := range forbiddenRules {
		if rule.Exact && p == rule.Path {
			logs.Warnf("staging source %s is forbidden (%s)", p, rule.Path)
			return ErrForbiddenSource
		}
		if rule.Prefix && isUnderPrefix(rule.Path, p) {
			logs.Warnf("staging source %s is under forbidden path %s", p, rule.Path)
			return ErrForbiddenSource
		}
	}

	return nil
}

// resolveStrict resolves p to an absolute canonical path, following all
// symlinks, and verifies the target exists.
func resolveStrict(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(filepath.Clean(abs))
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(resolved); err != nil {
		return "", err
	}

	return resolved, nil
}

func isUnderPrefix(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}
