package pipeline

import (
	"path"
	"path/filepath"

	"github.com/imgforge/imgforge/internal/collab"
	"github.com/imgforge/imgforge/internal/imageref"
)

// Plan is an ordered list of stages. The last stage is the one that commits;
// every earlier stage is auxiliary and discarded after the build.
type Plan struct {
	Stages []*Stage
}

// Final returns the committing stage.
func (p *Plan) Final() *Stage {
	if len(p.Stages) == 0 {
		return nil
	}
	return p.Stages[len(p.Stages)-1]
}

// Request describes one build of the standard runtime image.
type Request struct {
	Base imageref.Ref

	// Distribution names the runtime distribution the provisioner installs
	// (informational; the installer binary decides what it ships).
	Distribution   string
	RuntimeVersion string
	EnvName        string

	SystemPackages []string

	// ManifestPath is the host path of the dependency manifest; empty
	// skips dependency installation.
	ManifestPath string

	// AppDir is the host path of the application source tree; empty skips
	// staging.
	AppDir string

	// WorkDir is the in-image application directory. Defaults to /app.
	WorkDir string

	Env        []EnvVar
	Entrypoint []string
}

// Collaborators are the external tools a plan's steps drive.
type Collaborators struct {
	Resolver imageref.Resolver
	Runtime  collab.RuntimeInstaller
	System   collab.SystemPackageManager
	Deps     collab.DependencyInstaller
}

// DefaultPlan builds the two-stage runtime image pipeline: a disposable
// provision stage creates the pinned interpreter environment, and the final
// stage transplants it onto a fresh copy of the same base before layering
// system packages, dependencies, and application code on top.
func DefaultPlan(req Request, c Collaborators) *Plan {
	workdir := req.WorkDir
	if workdir == "" {
		workdir = "/app"
	}
	prefix := collab.EnvsDir + "/" + req.EnvName

	provision := &Stage{Name: "provision"}
	provision.Steps = []Step{
		&BaseStep{Ref: req.Base, Resolver: c.Resolver},
		&ProvisionStep{
			Installer:    c.Runtime,
			Distribution: req.Distribution,
			Version:      req.RuntimeVersion,
			EnvName:      req.EnvName,
		},
	}

	// The environment's bin dir goes first on PATH so the transplanted
	// interpreter shadows whatever the base image ships.
	decls := []EnvVar{{Key: "PATH", Value: prefix + "/bin:${PATH}"}}
	decls = append(decls, req.Env...)

	final := &Stage{Name: "final"}
	final.Steps = []Step{
		&BaseStep{Ref: req.Base, Resolver: c.Resolver},
		&TransplantStep{Source: provision, Path: prefix},
		&EnvStep{Decls: decls},
	}
	if len(req.SystemPackages) > 0 {
		final.Steps = append(final.Steps, &SystemStep{
			Manager:  c.System,
			Packages: req.SystemPackages,
		})
	}
	if req.ManifestPath != "" {
		final.Steps = append(final.Steps,
			&ManifestCopyStep{
				HostPath: req.ManifestPath,
				Dest:     path.Join(workdir, filepath.Base(req.ManifestPath)),
			},
			&DepsStep{Installer: c.Deps, HostPath: req.ManifestPath},
		)
	}
	if req.AppDir != "" {
		final.Steps = append(final.Steps, &AppStageStep{
			SrcDir:  req.AppDir,
			WorkDir: workdir,
		})
	}
	final.Steps = append(final.Steps, &EntrypointStep{Argv: req.Entrypoint})

	return &Plan{Stages: []*Stage{provision, final}}
}
