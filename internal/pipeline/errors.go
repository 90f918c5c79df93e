package pipeline

import "errors"

// Failure taxonomy. Steps wrap these sentinels so callers can distinguish
// user-fixable inputs (an unavailable interpreter, an unsatisfiable
// dependency) from infrastructure faults, with the collaborator's own output
// attached further down the chain. Base resolution failures surface as
// imageref.ErrResolution.
var (
	ErrProvisioning         = errors.New("runtime provisioning failed")
	ErrTransplant           = errors.New("stage transplant failed")
	ErrInstall              = errors.New("system dependency install failed")
	ErrDependencyResolution = errors.New("dependency resolution failed")
	ErrStaging              = errors.New("application staging failed")
)
