// Package buildcfg loads the build description from forge.yaml, with
// IMGFORGE_* environment variables and command-line flags layered on top.
package buildcfg

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/imgforge/imgforge/internal/imageref"
	"github.com/imgforge/imgforge/internal/pipeline"
	"github.com/imgforge/imgforge/internal/versions"
)

const configName = "forge"

// Runtime describes the interpreter environment the provision stage builds.
type Runtime struct {
	Distribution string `mapstructure:"distribution"`
	Version      string `mapstructure:"version"`
	EnvName      string `mapstructure:"env_name"`

	// Installer is the host path of the distribution installer script.
	Installer string `mapstructure:"installer"`
}

// App describes the application source tree and its in-image home.
type App struct {
	Source  string `mapstructure:"source"`
	WorkDir string `mapstructure:"workdir"`
}

// Config is the full build description.
type Config struct {
	Base           string   `mapstructure:"base"`
	Runtime        Runtime  `mapstructure:"runtime"`
	SystemPackages []string `mapstructure:"system_packages"`
	Manifest       string   `mapstructure:"manifest"`
	App            App      `mapstructure:"app"`

	// Env is an ordered list of KEY=VALUE declarations; order matters for
	// shadowing.
	Env []string `mapstructure:"env"`

	Entrypoint []string `mapstructure:"entrypoint"`

	// Output is the directory the OCI layout is written to.
	Output string `mapstructure:"output"`

	// Tag names the exported image.
	Tag string `mapstructure:"tag"`

	// Load pushes the exported image into the local Docker daemon.
	Load bool `mapstructure:"load"`

	// Dir is the directory the config was loaded from; relative paths in
	// the config resolve against it.
	Dir string `mapstructure:"-"`
}

// Load reads forge.yaml from dir. A missing file is not an error: env
// variables and flags can describe a whole build. Flags, when given, take
// precedence over both.
func Load(dir string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("IMGFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about; register the ones that
	// have no default so env-only configuration works.
	for _, key := range []string{
		"base", "runtime.version", "runtime.installer",
		"system_packages", "env", "entrypoint", "tag", "load",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind env %s: %w", key, err)
		}
	}

	v.SetDefault("runtime.distribution", "miniforge")
	v.SetDefault("runtime.env_name", "app")
	v.SetDefault("app.source", ".")
	v.SetDefault("app.workdir", "/app")
	v.SetDefault("manifest", "requirements.txt")
	v.SetDefault("output", "image")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Dir = dir

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Base == "" {
		return errors.New("config: base image is required")
	}
	if _, err := imageref.Parse(c.Base); err != nil {
		return fmt.Errorf("config: base: %w", err)
	}
	if c.Runtime.Version == "" {
		return errors.New("config: runtime.version is required")
	}
	if !versions.IsValid(c.Runtime.Version) {
		return fmt.Errorf("config: runtime.version %q is not a valid version", c.Runtime.Version)
	}
	if len(c.Entrypoint) == 0 {
		return errors.New("config: entrypoint is required")
	}
	return nil
}

// Request maps the config onto a pipeline request. Relative paths resolve
// against the config directory.
func (c *Config) Request() (pipeline.Request, error) {
	ref, err := imageref.Parse(c.Base)
	if err != nil {
		return pipeline.Request{}, err
	}

	env := make([]pipeline.EnvVar, 0, len(c.Env))
	for _, kv := range c.Env {
		k, val, ok := strings.Cut(kv, "=")
		if !ok {
			return pipeline.Request{}, fmt.Errorf("config: env entry %q is not KEY=VALUE", kv)
		}
		env = append(env, pipeline.EnvVar{Key: k, Value: val})
	}

	return pipeline.Request{
		Base:           ref,
		Distribution:   c.Runtime.Distribution,
		RuntimeVersion: c.Runtime.Version,
		EnvName:        c.Runtime.EnvName,
		SystemPackages: c.SystemPackages,
		ManifestPath:   c.resolve(c.Manifest),
		AppDir:         c.resolve(c.App.Source),
		WorkDir:        c.App.WorkDir,
		Env:            env,
		Entrypoint:     c.Entrypoint,
	}, nil
}

// OutputDir returns the resolved layout directory.
func (c *Config) OutputDir() string {
	return c.resolve(c.Output)
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}
