// Package agent defines the capabilities an algorithm needs from its
// actor and critic collaborators
package agent

import (
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// Stepper implements the fused policy and value query used while
// collecting rollouts. Given one observation row per environment, a
// Stepper selects one action row per environment and reports the log
// probability of each selected action together with the critic's value
// estimate of each observation.
//
// Fusing the two queries means collection needs exactly one forward
// pass of the policy and one of the value function per environment
// step, with no recomputation when the transition is later stored.
type Stepper interface {
	Step(obs *mat.Dense) (actions *mat.Dense, logP, value []float64,
		err error)
}

// LogPdfOfer implements a policy that can calculate the log of the
// probability density function of the policy for taking some
// (externally inputted) action in some (externally inputted) state.
// Because of this, the gradient will not be computed through the
// action selection process.
type LogPdfOfer interface {
	// Graph returns the computational graph holding the policy
	Graph() *G.ExprGraph

	// LogPdfNode returns the node that calculates the log probability
	// of the externally inputted actions
	LogPdfNode() *G.Node

	// EntropyNode returns the node that calculates the entropy of the
	// policy distribution
	EntropyNode() *G.Node

	// SetInputs sets the observation and action inputs of the log
	// probability calculation. Inputs should be constructed in row
	// major order.
	SetInputs(obs, actions []float64) error

	// Learnables returns the nodes of the policy that are learned
	Learnables() G.Nodes

	// Model returns the learnable nodes with their gradients
	Model() []G.ValueGrad
}
