package rollout

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goppo/environment"
)

// scriptedEnv is a deterministic environment for testing collection.
// The observation of environment e at timestep t is [t, e], the reward
// is t + e, and environment e terminates every e+2 steps.
type scriptedEnv struct {
	numEnvs int
	t       int
	epLen   []int
	resets  int
}

func newScriptedEnv(numEnvs int) *scriptedEnv {
	return &scriptedEnv{numEnvs: numEnvs, epLen: make([]int, numEnvs)}
}

func (s *scriptedEnv) NumEnvs() int { return s.numEnvs }

func (s *scriptedEnv) ObservationSpec() environment.Spec {
	return environment.Spec{
		Shape:       mat.NewVecDense(2, nil),
		Type:        environment.Observation,
		Cardinality: environment.Continuous,
	}
}

func (s *scriptedEnv) ActionSpec() environment.Spec {
	return environment.Spec{
		Shape:       mat.NewVecDense(1, nil),
		Type:        environment.Action,
		Cardinality: environment.Continuous,
	}
}

func (s *scriptedEnv) Reset(seeds []uint64) (*mat.Dense, error) {
	s.t = 0
	s.resets++
	s.epLen = make([]int, s.numEnvs)
	return s.observations(), nil
}

func (s *scriptedEnv) Step(actions *mat.Dense) (environment.Step, error) {
	reward := make([]float64, s.numEnvs)
	done := make([]bool, s.numEnvs)
	epLen := make([]int, s.numEnvs)
	for e := 0; e < s.numEnvs; e++ {
		reward[e] = float64(s.t + e)
		s.epLen[e]++
		epLen[e] = s.epLen[e]
		if s.epLen[e] == e+2 {
			done[e] = true
			s.epLen[e] = 0
		}
	}
	s.t++

	return environment.Step{
		Obs:    s.observations(),
		Reward: reward,
		Done:   done,
		EpLen:  epLen,
	}, nil
}

func (s *scriptedEnv) observations() *mat.Dense {
	obs := mat.NewDense(s.numEnvs, 2, nil)
	for e := 0; e < s.numEnvs; e++ {
		obs.Set(e, 0, float64(s.t))
		obs.Set(e, 1, float64(e))
	}
	return obs
}

// scriptedStepper is a deterministic fused policy and value query for
// testing collection. The action for an observation is its first
// feature negated, the log probability is -1, and the value estimate
// is the sum of the observation's features.
type scriptedStepper struct {
	calls int
}

func (s *scriptedStepper) Step(obs *mat.Dense) (*mat.Dense, []float64,
	[]float64, error) {
	s.calls++
	r, _ := obs.Dims()
	actions := mat.NewDense(r, 1, nil)
	logP := make([]float64, r)
	value := make([]float64, r)
	for e := 0; e < r; e++ {
		actions.Set(e, 0, -obs.At(e, 0))
		logP[e] = -1
		value[e] = obs.At(e, 0) + obs.At(e, 1)
	}
	return actions, logP, value, nil
}

func TestCollect(t *testing.T) {
	numEnvs, steps := 3, 5
	env := newScriptedEnv(numEnvs)
	stepper := &scriptedStepper{}

	buffer, err := Collect(env, stepper, steps, make([]uint64, numEnvs))
	if err != nil {
		t.Fatal(err)
	}

	if env.resets != 1 {
		t.Errorf("collection should reset the environment exactly once, "+
			"got %v resets", env.resets)
	}
	// One extra query records the bootstrap value row
	if stepper.calls != steps+1 {
		t.Errorf("stepper calls \n\twant(%v)\n\thave(%v)", steps+1,
			stepper.calls)
	}

	if buffer.Steps() != steps || buffer.NumEnvs() != numEnvs {
		t.Fatalf("buffer dimensions \n\twant(%v×%v)\n\thave(%v×%v)",
			steps, numEnvs, buffer.Steps(), buffer.NumEnvs())
	}

	// Spot check the recorded transitions against the scripts
	for step := 0; step <= steps; step++ {
		for e := 0; e < numEnvs; e++ {
			i := step*numEnvs + e
			if buffer.Obs[i*2] != float64(step) ||
				buffer.Obs[i*2+1] != float64(e) {
				t.Errorf("observation at timestep %v, environment %v "+
					"\n\twant([%v %v])\n\thave([%v %v])", step, e,
					float64(step), float64(e), buffer.Obs[i*2],
					buffer.Obs[i*2+1])
			}
			if buffer.Action[i] != -float64(step) {
				t.Errorf("action at timestep %v, environment %v "+
					"\n\twant(%v)\n\thave(%v)", step, e, -float64(step),
					buffer.Action[i])
			}
			if buffer.Value[i] != float64(step+e) {
				t.Errorf("value at timestep %v, environment %v "+
					"\n\twant(%v)\n\thave(%v)", step, e, float64(step+e),
					buffer.Value[i])
			}
			if buffer.Reward[i] != float64(step+e) {
				t.Errorf("reward at timestep %v, environment %v "+
					"\n\twant(%v)\n\thave(%v)", step, e, float64(step+e),
					buffer.Reward[i])
			}
		}
	}

	// Environment 0 terminates every 2 steps
	if !buffer.Done[1*numEnvs] || buffer.Done[0] {
		t.Error("termination flags were not recorded faithfully")
	}
}

func TestCollectSeedValidation(t *testing.T) {
	env := newScriptedEnv(3)
	stepper := &scriptedStepper{}

	_, err := Collect(env, stepper, 5, make([]uint64, 2))
	if err == nil {
		t.Error("expected an error when given fewer seeds than " +
			"environments")
	} else if !IsShapeMismatch(err) {
		t.Errorf("error should report a shape mismatch, got %v", err)
	}
}
