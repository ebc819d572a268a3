// Package environment outlines the interfaces needed to interact with
// vectorized simulation environments
package environment

import (
	"gonum.org/v1/gonum/mat"
)

// Cardinality indicates whether the associated type is continuous or discrete
type Cardinality int

const (
	Discrete Cardinality = iota
	Continuous
)

// SpecType determines what kind of specification a Spec is. A Spec can
// specify the layout of an action or an observation.
type SpecType int

const (
	Action SpecType = iota
	Observation
)

// Spec implements a specification, which tells the type, shape, and
// bounds of an action or observation
type Spec struct {
	Shape      mat.Vector
	Type       SpecType
	LowerBound mat.Vector
	UpperBound mat.Vector
	Cardinality
}

// Step packages together the result of stepping every environment in a
// vectorized environment once. All leading dimensions equal the number
// of parallel environments.
type Step struct {
	// Obs holds one observation row per environment. For an
	// environment that terminated on this step, the row holds the
	// first observation of the next episode.
	Obs *mat.Dense

	// Reward holds the reward earned by the transition in each
	// environment
	Reward []float64

	// Done marks environments whose episode terminated on this step
	Done []bool

	// EpLen holds the running episode length of each environment,
	// including this step
	EpLen []int
}

// VecEnv implements a batch of identical simulation environments that
// reset and step together. A single environment is the degenerate case
// with NumEnvs() == 1.
//
// Environments share no state with one another: stepping environment e
// must depend only on environment e's state and the e'th action row.
// An environment that reaches a terminal state reports Done and
// immediately begins a new episode, so collection never stalls on
// termination.
type VecEnv interface {
	// NumEnvs returns the number of parallel environments
	NumEnvs() int

	ObservationSpec() Spec
	ActionSpec() Spec

	// Reset restarts every environment and returns the starting
	// observations, one row per environment. One seed per environment
	// must be given, and equal seeds must reproduce equal episodes.
	Reset(seeds []uint64) (*mat.Dense, error)

	// Step advances every environment by one timestep using the
	// corresponding row of actions
	Step(actions *mat.Dense) (Step, error)
}
