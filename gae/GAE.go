// Package gae implements generalized advantage estimation - GAE(λ) -
// following https://arxiv.org/abs/1506.02438.
package gae

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Advantages computes GAE(λ) advantage estimates for a batch of
// parallel environments.
//
// All arguments are time-major and flat: index [t*numEnvs + e] holds
// the value for environment e at timestep t. The rewards and dones
// arguments must hold N timesteps, and values must hold N+1 timesteps,
// where the final row of values is the bootstrap value estimate at the
// trajectory cutoff. For a terminal transition, dones masks the
// bootstrap so that no credit propagates across episode boundaries.
//
// The returned advantages hold N timesteps in the same layout. Each
// environment column is an independent backward recursion
//
//	δ[t] = r[t] + ℽ * v[t+1] * (1 - done[t]) - v[t]
//	gae[t] = δ[t] + ℽ * λ * (1 - done[t]) * gae[t+1]
//
// with gae[N] = 0. No state is shared between environment columns.
//
// The advantages are plain float64 data, disconnected from any
// computational graph. They are training targets and are never
// differentiated through.
func Advantages(rewards []float64, dones []bool, values []float64,
	numEnvs int, gamma, lambda float64) ([]float64, error) {
	if numEnvs <= 0 {
		return nil, fmt.Errorf("advantages: non-positive number of "+
			"environments %v", numEnvs)
	}
	if len(rewards)%numEnvs != 0 {
		return nil, fmt.Errorf("advantages: rewards length %v is not a "+
			"multiple of the number of environments %v", len(rewards), numEnvs)
	}
	if len(dones) != len(rewards) {
		return nil, fmt.Errorf("advantages: illegal dones length "+
			"\n\twant(%v)\n\thave(%v)", len(rewards), len(dones))
	}
	if len(values) != len(rewards)+numEnvs {
		return nil, fmt.Errorf("advantages: illegal values length "+
			"\n\twant(%v)\n\thave(%v)", len(rewards)+numEnvs, len(values))
	}

	steps := len(rewards) / numEnvs

	notDones := make([]float64, len(dones))
	for i, done := range dones {
		if !done {
			notDones[i] = 1.0
		}
	}

	// TD errors δ[t] = r[t] + ℽ * v[t+1] * notDone[t] - v[t], computed
	// one timestep row at a time across all environments
	deltas := make([]float64, steps*numEnvs)
	masked := mat.NewVecDense(numEnvs, nil)
	for t := 0; t < steps; t++ {
		row := t * numEnvs

		rews := mat.NewVecDense(numEnvs, rewards[row:row+numEnvs])
		vals := mat.NewVecDense(numEnvs, values[row:row+numEnvs])
		nextVals := mat.NewVecDense(numEnvs, values[row+numEnvs:row+2*numEnvs])
		notDone := mat.NewVecDense(numEnvs, notDones[row:row+numEnvs])

		masked.MulElemVec(nextVals, notDone)

		delta := mat.NewVecDense(numEnvs, deltas[row:row+numEnvs])
		delta.AddScaledVec(rews, gamma, masked)
		delta.SubVec(delta, vals)
	}

	// Backward recursion, one running accumulator per environment
	advantages := make([]float64, steps*numEnvs)
	running := make([]float64, numEnvs)
	for t := steps - 1; t >= 0; t-- {
		for e := 0; e < numEnvs; e++ {
			i := t*numEnvs + e
			running[e] = deltas[i] + gamma*lambda*notDones[i]*running[e]
			advantages[i] = running[e]
		}
	}

	return advantages, nil
}
