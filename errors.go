package cpso

import "github.com/pkg/errors"

var (
	ErrBounds    = errors.New("invalid bounds")
	ErrMaxIter   = errors.New("max iterations must be at least 2")
	ErrSwarmSize = errors.New("swarm must have at least one particle")
	ErrConfig    = errors.New("invalid configuration")
)
