package pipeline

// Phase is the build's lifecycle position. Phases only move forward; any
// failure lands in PhaseAborted and nothing is published.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseBaseResolved
	PhaseProvisioned
	PhaseTransplanted
	PhaseConfigured
	PhaseSystemDepsInstalled
	PhaseDepsInstalled
	PhaseStaged
	PhaseEntryPointSet
	PhaseCommitted
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseBaseResolved:
		return "base-resolved"
	case PhaseProvisioned:
		return "provisioned"
	case PhaseTransplanted:
		return "transplanted"
	case PhaseConfigured:
		return "configured"
	case PhaseSystemDepsInstalled:
		return "system-deps-installed"
	case PhaseDepsInstalled:
		return "deps-installed"
	case PhaseStaged:
		return "staged"
	case PhaseEntryPointSet:
		return "entrypoint-set"
	case PhaseCommitted:
		return "committed"
	case PhaseAborted:
		return "aborted"
	}
	return "unknown"
}
