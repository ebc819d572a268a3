// Package rollout implements a fixed-shape, time-major record of the
// transitions gathered by running a policy in a vectorized environment
// for a fixed number of steps. The buffer is assembled once per
// training epoch, post-processed into advantage and return targets,
// consumed, and discarded: on-policy data never survives the epoch
// that collected it.
package rollout

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/samuelfneumann/goppo/gae"
	"github.com/samuelfneumann/goppo/utils/floatutils"
)

// advEpsilon keeps advantage normalization away from division by zero
// when every advantage in the buffer is identical.
const advEpsilon float64 = 1e-8

// Buffer is a time-major record of transitions across parallel
// environments. Every field is flat with index [t*numEnvs + e] (times
// the per-element size for Obs and Action) holding the entry for
// environment e at timestep t.
//
// During collection the buffer holds steps+1 timestep rows. The extra
// row exists solely so that the critic's estimate of the state after
// the final real transition is available to bootstrap the advantage
// recursion. Finish trims the extra row from every field except Value,
// whose final row it consumes as the bootstrap for return targets.
type Buffer struct {
	LogP   []float64
	Action []float64
	Obs    []float64
	Adv    []float64
	Reward []float64
	Ret    []float64
	Value  []float64
	Done   []bool
	EpLen  []int

	obsDim  int
	actDim  int
	steps   int // Timesteps per environment, excluding the bootstrap row
	numEnvs int

	rows      int // Timestep rows stored so far
	processed bool
}

// New creates and returns an empty Buffer that records steps+1
// timestep rows for numEnvs parallel environments, where observations
// have obsDim features and actions have actDim dimensions.
func New(obsDim, actDim, steps, numEnvs int) (*Buffer, error) {
	if steps <= 0 {
		return nil, &BufferError{
			Op:  "new",
			Err: fmt.Errorf("%w: non-positive steps %v", errInvalidConfig, steps),
		}
	}
	if numEnvs <= 0 {
		return nil, &BufferError{
			Op: "new",
			Err: fmt.Errorf("%w: non-positive number of environments %v",
				errInvalidConfig, numEnvs),
		}
	}
	if obsDim <= 0 || actDim <= 0 {
		return nil, &BufferError{
			Op: "new",
			Err: fmt.Errorf("%w: non-positive observation (%v) or action "+
				"(%v) dimension", errInvalidConfig, obsDim, actDim),
		}
	}

	rows := steps + 1
	return &Buffer{
		LogP:    make([]float64, rows*numEnvs),
		Action:  make([]float64, rows*numEnvs*actDim),
		Obs:     make([]float64, rows*numEnvs*obsDim),
		Reward:  make([]float64, rows*numEnvs),
		Value:   make([]float64, rows*numEnvs),
		Done:    make([]bool, rows*numEnvs),
		EpLen:   make([]int, rows*numEnvs),
		obsDim:  obsDim,
		actDim:  actDim,
		steps:   steps,
		numEnvs: numEnvs,
	}, nil
}

// ObsDim returns the number of features in a single observation
func (b *Buffer) ObsDim() int { return b.obsDim }

// ActDim returns the number of action dimensions
func (b *Buffer) ActDim() int { return b.actDim }

// Steps returns the number of timesteps per environment that training
// consumes, excluding the bootstrap row
func (b *Buffer) Steps() int { return b.steps }

// NumEnvs returns the number of parallel environments recorded
func (b *Buffer) NumEnvs() int { return b.numEnvs }

// Processed returns whether advantage and return targets have been
// computed yet
func (b *Buffer) Processed() bool { return b.processed }

// Store records one timestep row across all environments: the
// observations each environment was in, the actions taken from them
// with their log probabilities and value estimates, and the rewards,
// termination flags, and running episode lengths the actions produced.
// Rows must be stored in timestep order.
func (b *Buffer) Store(t int, obs, actions *mat.Dense, logP, value,
	reward []float64, done []bool, epLen []int) error {
	if b.processed {
		return &BufferError{
			Op:  "store",
			Err: fmt.Errorf("cannot store into a post-processed buffer"),
		}
	}
	if t != b.rows {
		return &BufferError{
			Op: "store",
			Err: fmt.Errorf("rows must be stored in order "+
				"\n\twant(%v)\n\thave(%v)", b.rows, t),
		}
	}
	if t > b.steps {
		return &BufferError{
			Op:  "store",
			Err: fmt.Errorf("cannot add new row, buffer at maximum capacity"),
		}
	}

	if r, c := obs.Dims(); r != b.numEnvs || c != b.obsDim {
		return &BufferError{
			Op: "store",
			Err: fmt.Errorf("%w: illegal obs shape \n\twant(%v×%v)"+
				"\n\thave(%v×%v)", errShapeMismatch, b.numEnvs, b.obsDim, r, c),
		}
	}
	if r, c := actions.Dims(); r != b.numEnvs || c != b.actDim {
		return &BufferError{
			Op: "store",
			Err: fmt.Errorf("%w: illegal action shape \n\twant(%v×%v)"+
				"\n\thave(%v×%v)", errShapeMismatch, b.numEnvs, b.actDim, r, c),
		}
	}
	if len(logP) != b.numEnvs || len(value) != b.numEnvs ||
		len(reward) != b.numEnvs || len(done) != b.numEnvs ||
		len(epLen) != b.numEnvs {
		return &BufferError{
			Op: "store",
			Err: fmt.Errorf("%w: per-environment fields must have length %v",
				errShapeMismatch, b.numEnvs),
		}
	}

	row := t * b.numEnvs
	for e := 0; e < b.numEnvs; e++ {
		copy(b.Obs[(row+e)*b.obsDim:(row+e+1)*b.obsDim], obs.RawRowView(e))
		copy(b.Action[(row+e)*b.actDim:(row+e+1)*b.actDim],
			actions.RawRowView(e))
	}
	copy(b.LogP[row:row+b.numEnvs], logP)
	copy(b.Value[row:row+b.numEnvs], value)
	copy(b.Reward[row:row+b.numEnvs], reward)
	copy(b.Done[row:row+b.numEnvs], done)
	copy(b.EpLen[row:row+b.numEnvs], epLen)

	b.rows++
	return nil
}

// Finish computes the buffer's training targets: GAE(λ) advantage
// estimates, optionally normalized to mean 0 and standard deviation 1
// over the flattened (timestep × environment) set, and return targets
//
//	ret[t, e] = adv[t, e] + value[steps, e]
//
// where value[steps, e] is environment e's bootstrap value at the
// trajectory cutoff. The bootstrap value is added uniformly to every
// timestep's advantage - it is not the per-timestep value estimate.
// When normalization is enabled, the return targets are built from the
// normalized advantages.
//
// After Finish, every field except Value is trimmed to the buffer's
// advertised number of steps and the buffer can no longer be stored
// into.
func (b *Buffer) Finish(gamma, lambda float64, normalize bool) error {
	if b.processed {
		return &BufferError{
			Op:  "finish",
			Err: fmt.Errorf("buffer already post-processed"),
		}
	}
	if b.rows != b.steps+1 {
		return &BufferError{
			Op: "finish",
			Err: fmt.Errorf("buffer must be full before post-processing "+
				"\n\twant(%v rows)\n\thave(%v rows)", b.steps+1, b.rows),
		}
	}
	if gamma <= 0 || gamma > 1 {
		return &BufferError{
			Op:  "finish",
			Err: fmt.Errorf("%w: gamma %v ∉ (0, 1]", errInvalidConfig, gamma),
		}
	}
	if lambda < 0 || lambda > 1 {
		return &BufferError{
			Op:  "finish",
			Err: fmt.Errorf("%w: lambda %v ∉ [0, 1]", errInvalidConfig, lambda),
		}
	}

	size := b.steps * b.numEnvs
	adv, err := gae.Advantages(b.Reward[:size], b.Done[:size], b.Value,
		b.numEnvs, gamma, lambda)
	if err != nil {
		return &BufferError{Op: "finish", Err: err}
	}

	if normalize {
		advVec := mat.NewVecDense(size, adv)
		ones := mat.NewVecDense(size, floatutils.Ones(size))

		mean := stat.Mean(adv, nil)

		// stat.StdDev divides by n-1; at rollout sizes the difference
		// from the population deviation is negligible
		std := stat.StdDev(adv, nil) + advEpsilon
		stdVec := mat.NewVecDense(size, nil)
		stdVec.AddScaledVec(stdVec, std, ones)

		advVec.AddScaledVec(advVec, -mean, ones)
		advVec.DivElemVec(advVec, stdVec)
	}

	// Return targets bootstrap from the trajectory-final value row
	bootstrap := b.Value[size : size+b.numEnvs]
	ret := make([]float64, size)
	for t := 0; t < b.steps; t++ {
		row := t * b.numEnvs
		retRow := mat.NewVecDense(b.numEnvs, ret[row:row+b.numEnvs])
		retRow.AddVec(
			mat.NewVecDense(b.numEnvs, adv[row:row+b.numEnvs]),
			mat.NewVecDense(b.numEnvs, bootstrap),
		)
	}

	b.Adv = adv
	b.Ret = ret
	b.LogP = b.LogP[:size]
	b.Action = b.Action[:size*b.actDim]
	b.Obs = b.Obs[:size*b.obsDim]
	b.Reward = b.Reward[:size]
	b.Done = b.Done[:size]
	b.EpLen = b.EpLen[:size]

	b.processed = true
	return nil
}

// Anomalies returns the number of NaN or infinite advantage and return
// targets in the buffer. Non-finite targets are reported rather than
// fatal: whether to abort on them is the caller's policy.
func (b *Buffer) Anomalies() int {
	return floatutils.CountNonFinite(b.Adv) + floatutils.CountNonFinite(b.Ret)
}

// EpisodeStats scans the buffer for episodes that terminated inside
// the collection window and returns their mean undiscounted return,
// mean length, and count. Episodes cut off by the end of the window
// are excluded: their eventual return is unknown.
func (b *Buffer) EpisodeStats() (meanRet, meanLen float64, episodes int) {
	if !b.processed {
		return 0, 0, 0
	}

	totalRet, totalLen := 0.0, 0.0
	for e := 0; e < b.numEnvs; e++ {
		epRet := 0.0
		for t := 0; t < b.steps; t++ {
			i := t*b.numEnvs + e
			epRet += b.Reward[i]
			if b.Done[i] {
				totalRet += epRet
				totalLen += float64(b.EpLen[i])
				episodes++
				epRet = 0.0
			}
		}
	}

	if episodes == 0 {
		return 0, 0, 0
	}
	return totalRet / float64(episodes), totalLen / float64(episodes), episodes
}
