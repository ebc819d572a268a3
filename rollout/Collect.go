package rollout

import (
	"fmt"

	"github.com/samuelfneumann/goppo/agent"
	"github.com/samuelfneumann/goppo/environment"
)

// Collect resets every environment with its own seed and runs the
// fused policy/value stepper for stepsPerEnv+1 steps, returning the
// assembled buffer. The extra step exists solely to record the
// bootstrap value estimate for the final real transition; Finish trims
// it.
//
// Errors from the environment or the stepper propagate unmodified: a
// corrupted rollout cannot be salvaged, so collection is never
// retried.
func Collect(env environment.VecEnv, stepper agent.Stepper,
	stepsPerEnv int, seeds []uint64) (*Buffer, error) {
	numEnvs := env.NumEnvs()
	if len(seeds) != numEnvs {
		return nil, &BufferError{
			Op: "collect",
			Err: fmt.Errorf("%w: need one seed per environment "+
				"\n\twant(%v)\n\thave(%v)", errShapeMismatch, numEnvs,
				len(seeds)),
		}
	}

	obsDim := env.ObservationSpec().Shape.Len()
	actDim := env.ActionSpec().Shape.Len()
	buffer, err := New(obsDim, actDim, stepsPerEnv, numEnvs)
	if err != nil {
		return nil, err
	}

	obs, err := env.Reset(seeds)
	if err != nil {
		return nil, err
	}

	for t := 0; t <= stepsPerEnv; t++ {
		actions, logP, value, err := stepper.Step(obs)
		if err != nil {
			return nil, err
		}

		step, err := env.Step(actions)
		if err != nil {
			return nil, err
		}

		err = buffer.Store(t, obs, actions, logP, value, step.Reward,
			step.Done, step.EpLen)
		if err != nil {
			return nil, err
		}

		obs = step.Obs
	}

	return buffer, nil
}
