package collab

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// CondaPrefix is where the runtime distribution lands inside the
// provisioning stage. Only EnvsDir/<name> survives into the final image;
// the installer payload under CondaPrefix is discarded with the stage.
const (
	CondaPrefix = "/opt/conda"
	EnvsDir     = CondaPrefix + "/envs"
)

// CondaInstaller provisions interpreter environments through a conda-style
// distribution installer script.
type CondaInstaller struct {
	// InstallerPath is the host path of the distribution's installer
	// script (e.g. a downloaded Miniforge3.sh).
	InstallerPath string
}

func NewCondaInstaller(installerPath string) *CondaInstaller {
	return &CondaInstaller{InstallerPath: installerPath}
}

// CreateEnvironment runs the distribution installer into the stage rootfs,
// then creates a named environment pinned to the requested interpreter
// version.
func (c *CondaInstaller) CreateEnvironment(ctx context.Context, rootfs, envName, version string) (Environment, error) {
	if _, err := os.Stat(c.InstallerPath); err != nil {
		return Environment{}, fmt.Errorf("%w: installer script: %v", ErrUnavailable, err)
	}

	hostPrefix := filepath.Join(rootfs, CondaPrefix)
	if err := os.MkdirAll(filepath.Dir(hostPrefix), 0o755); err != nil {
		return Environment{}, err
	}

	// -b: batch, -u: update existing prefix. Idempotence across cache
	// misses comes from the layer store, not from the installer.
	if _, err := runCommand(ctx, "bash", c.InstallerPath, "-b", "-u", "-p", hostPrefix); err != nil {
		return Environment{}, fmt.Errorf("install runtime distribution: %w", err)
	}

	hostEnv := filepath.Join(rootfs, EnvsDir, envName)
	out, err := runCommand(ctx,
		filepath.Join(hostPrefix, "bin", "conda"),
		"create", "--yes", "--no-default-packages",
		"--prefix", hostEnv,
		"python="+version,
	)
	if err = classify(err, out, []string{
		"PackagesNotFoundError",
		"ResolvePackageNotFound",
	}, ErrUnavailable); err != nil {
		return Environment{}, fmt.Errorf("create environment %s: %w", envName, err)
	}

	return Environment{Rootfs: rootfs, Prefix: EnvsDir + "/" + envName}, nil
}
