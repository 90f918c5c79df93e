package imageref

import (
	"context"

	"github.com/opencontainers/go-digest"
)

// Resolved is a pinned base: the reference, its content digest, the
// materialized root filesystem, and the environment the base image declares
// (which seeds the build's environment variable set).
type Resolved struct {
	Ref    Ref
	Digest digest.Digest
	RootFS string
	Env    []string
}

// Resolver fetches a (repository, tag) pair once per build and materializes
// its filesystem. Implementations may keep a local cache keyed by
// (repository, tag, digest).
type Resolver interface {
	Resolve(ctx context.Context, ref Ref) (*Resolved, error)
}
