package buildcfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "forge.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	dir := writeConfig(t, `
base: foo:22.04
runtime:
  version: "3.12"
system_packages:
  - libgl1
  - libglib2.0-0
env:
  - MODE=production
entrypoint:
  - python
  - main.py
tag: myapp:latest
load: true
`)

	cfg, err := Load(dir, nil)
	require.NoError(t, err)

	require.Equal(t, "foo:22.04", cfg.Base)
	require.Equal(t, "3.12", cfg.Runtime.Version)
	require.Equal(t, "miniforge", cfg.Runtime.Distribution)
	require.Equal(t, "app", cfg.Runtime.EnvName)
	require.Equal(t, []string{"libgl1", "libglib2.0-0"}, cfg.SystemPackages)
	require.Equal(t, "myapp:latest", cfg.Tag)
	require.True(t, cfg.Load)

	req, err := cfg.Request()
	require.NoError(t, err)
	require.Equal(t, "foo", req.Base.Repository)
	require.Equal(t, "22.04", req.Base.Tag)
	require.Equal(t, "/app", req.WorkDir)
	require.Equal(t, filepath.Join(dir, "requirements.txt"), req.ManifestPath)
	require.Equal(t, dir, req.AppDir)
	require.Equal(t, []string{"python", "main.py"}, req.Entrypoint)
	require.Len(t, req.Env, 1)
	require.Equal(t, "MODE", req.Env[0].Key)
	require.Equal(t, "production", req.Env[0].Value)
}

func TestLoadFromEnvWithoutFile(t *testing.T) {
	t.Setenv("IMGFORGE_BASE", "nvidia/cuda:12.4")
	t.Setenv("IMGFORGE_RUNTIME_VERSION", "3.11")
	t.Setenv("IMGFORGE_ENTRYPOINT", "python,serve.py")

	cfg, err := Load(t.TempDir(), nil)
	require.NoError(t, err)

	require.Equal(t, "nvidia/cuda:12.4", cfg.Base)
	require.Equal(t, "3.11", cfg.Runtime.Version)
	require.Equal(t, []string{"python", "serve.py"}, cfg.Entrypoint)
}

func TestLoadValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		yaml string
	}{
		{"missing base", "runtime:\n  version: \"3.12\"\nentrypoint: [python]\n"},
		{"bad base ref", "base: \"not a ref\"\nruntime:\n  version: \"3.12\"\nentrypoint: [python]\n"},
		{"missing version", "base: foo:22.04\nentrypoint: [python]\n"},
		{"bad version", "base: foo:22.04\nruntime:\n  version: banana\nentrypoint: [python]\n"},
		{"missing entrypoint", "base: foo:22.04\nruntime:\n  version: \"3.12\"\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, tc.yaml), nil)
			require.Error(t, err)
		})
	}
}

func TestRequestRejectsMalformedEnv(t *testing.T) {
	t.Parallel()

	dir := writeConfig(t, `
base: foo:22.04
runtime:
  version: "3.12"
env:
  - NOEQUALS
entrypoint: [python]
`)

	cfg, err := Load(dir, nil)
	require.NoError(t, err)

	_, err = cfg.Request()
	require.ErrorContains(t, err, "NOEQUALS")
}

func TestResolveKeepsAbsolutePaths(t *testing.T) {
	t.Parallel()

	dir := writeConfig(t, `
base: foo:22.04
runtime:
  version: "3.12"
manifest: /etc/deps/requirements.txt
entrypoint: [python]
`)

	cfg, err := Load(dir, nil)
	require.NoError(t, err)

	req, err := cfg.Request()
	require.NoError(t, err)
	require.Equal(t, "/etc/deps/requirements.txt", req.ManifestPath)
}
