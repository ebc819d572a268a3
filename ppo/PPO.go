// Package ppo implements the Proximal Policy Optimization algorithm
// with generalized advantage estimation for vectorized environments
// with continuous state and action spaces.
package ppo

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"

	"github.com/samuelfneumann/goppo/agent"
	"github.com/samuelfneumann/goppo/environment"
	"github.com/samuelfneumann/goppo/network"
	"github.com/samuelfneumann/goppo/policy"
	"github.com/samuelfneumann/goppo/rollout"
	"github.com/samuelfneumann/goppo/sampler"
	"github.com/samuelfneumann/goppo/solver"
	"github.com/samuelfneumann/goppo/tracker"
	"github.com/samuelfneumann/goppo/utils/floatutils"
)

// klStopFactor scales TargetKL into the hard early-stopping threshold
const klStopFactor float64 = 1.5

// PPO implements the Proximal Policy Optimization algorithm:
//
// https://arxiv.org/abs/1707.06347
//
// Each epoch collects a fixed-length rollout from every parallel
// environment using a behaviour policy, post-processes the rollout
// into advantage estimates and return targets, then runs a fixed
// number of minibatch gradient updates on the train policy and train
// value function. The behaviour networks are synchronized with the
// train networks only once the epoch's updates finish, so every
// transition in a rollout is generated by a single, fixed policy.
type PPO struct {
	env environment.VecEnv
	cfg Config

	// Behaviour networks, batched over environments. These run the
	// fused policy/value query during collection and are written to
	// only by the end-of-epoch weight synchronization.
	behaviour *policy.GaussianMLP
	vValueFn  network.NeuralNet
	vVM       G.VM

	// Train policy and its clipped surrogate loss, batched over
	// minibatches
	trainPolicy   *policy.GaussianMLP
	actor         *actorLoss
	trainPolicyVM G.VM
	policySolver  *solver.Solver

	// Train value function and its squared error loss, batched over
	// minibatches
	trainValueFn   network.NeuralNet
	critic         *criticLoss
	trainValueFnVM G.VM
	vSolver        *solver.Solver

	// Source of every seed the algorithm consumes. Per epoch the draw
	// order is fixed: one environment reset seed per parallel
	// environment, then one minibatch sampler seed.
	rng *rand.Rand

	epoch int
}

// Compile-time interface satisfaction check
var _ agent.Stepper = (*PPO)(nil)

// New returns a new PPO agent that trains pol and valueFn on env. The
// batch sizes of pol and valueFn must equal c.BatchSize; New clones
// both at batch size env.NumEnvs() to construct the behaviour
// networks. The seed fully determines environment resets, action
// noise, and minibatch selection, so two agents constructed with equal
// arguments produce bitwise equal training runs.
func New(env environment.VecEnv, c Config, pol *policy.GaussianMLP,
	valueFn network.NeuralNet, policySolver, vSolver *solver.Solver,
	seed uint64) (*PPO, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	if env.NumEnvs() <= 0 {
		return nil, fmt.Errorf("new: %w: non-positive number of "+
			"environments %v", errInvalidConfig, env.NumEnvs())
	}

	obsDim := env.ObservationSpec().Shape.Len()
	actDim := env.ActionSpec().Shape.Len()
	if pol.Features() != obsDim || pol.ActionDims() != actDim {
		return nil, fmt.Errorf("new: %w: policy dimensions (%v features, "+
			"%v actions) do not match environment (%v, %v)",
			errInvalidConfig, pol.Features(), pol.ActionDims(), obsDim,
			actDim)
	}
	if valueFn.Features() != obsDim {
		return nil, fmt.Errorf("new: %w: value function features "+
			"\n\twant(%v)\n\thave(%v)", errInvalidConfig, obsDim,
			valueFn.Features())
	}
	if valueFn.Outputs() != 1 {
		return nil, fmt.Errorf("new: %w: value function must have a "+
			"single output, got %v", errInvalidConfig, valueFn.Outputs())
	}
	if pol.BatchSize() != c.BatchSize || valueFn.BatchSize() != c.BatchSize {
		return nil, fmt.Errorf("new: %w: network batch sizes "+
			"\n\twant(%v)\n\thave(%v policy, %v value function)",
			errInvalidConfig, c.BatchSize, pol.BatchSize(),
			valueFn.BatchSize())
	}

	rng := rand.New(rand.NewSource(seed))

	// Train policy loss and gradients
	actor, err := newActorLoss(pol, c.ClipRatio, c.PiCoef, c.EntCoef)
	if err != nil {
		return nil, fmt.Errorf("new: could not construct surrogate "+
			"objective: %v", err)
	}
	if _, err := G.Grad(actor.loss, pol.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute policy gradient: %v",
			err)
	}
	trainPolicyVM := G.NewTapeMachine(pol.Graph(),
		G.BindDualValues(pol.Learnables()...))

	// Train value function loss and gradients
	critic := newCriticLoss(valueFn, c.VFCoef)
	if _, err := G.Grad(critic.loss, valueFn.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute value gradient: %v",
			err)
	}
	trainValueFnVM := G.NewTapeMachine(valueFn.Graph(),
		G.BindDualValues(valueFn.Learnables()...))

	// Behaviour networks at one row per parallel environment
	behaviour, err := pol.CloneWithBatch(env.NumEnvs(), rng.Uint64())
	if err != nil {
		return nil, fmt.Errorf("new: could not clone behaviour policy: %v",
			err)
	}
	vValueFn, err := valueFn.CloneWithBatch(env.NumEnvs())
	if err != nil {
		return nil, fmt.Errorf("new: could not clone behaviour value "+
			"function: %v", err)
	}
	vVM := G.NewTapeMachine(vValueFn.Graph())

	return &PPO{
		env: env,
		cfg: c,

		behaviour: behaviour,
		vValueFn:  vValueFn,
		vVM:       vVM,

		trainPolicy:   pol,
		actor:         actor,
		trainPolicyVM: trainPolicyVM,
		policySolver:  policySolver,

		trainValueFn:   valueFn,
		critic:         critic,
		trainValueFnVM: trainValueFnVM,
		vSolver:        vSolver,

		rng: rng,
	}, nil
}

// Step selects one action row per environment with the behaviour
// policy and evaluates the behaviour value function at the same
// observations. Both queries run on the observations exactly once.
func (p *PPO) Step(obs *mat.Dense) (*mat.Dense, []float64, []float64,
	error) {
	actions, logP, err := p.behaviour.SelectActions(obs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("step: %v", err)
	}

	r, c := obs.Dims()
	flat := make([]float64, r*c)
	for i := 0; i < r; i++ {
		copy(flat[i*c:(i+1)*c], obs.RawRowView(i))
	}
	if err := p.vValueFn.SetInput(flat); err != nil {
		return nil, nil, nil, fmt.Errorf("step: %v", err)
	}
	if err := p.vVM.RunAll(); err != nil {
		return nil, nil, nil, fmt.Errorf("step: %v", err)
	}
	value := make([]float64, r)
	copy(value, p.vValueFn.Output().Data().([]float64))
	p.vVM.Reset()

	return actions, logP, value, nil
}

// EpochStats summarizes one call to TrainEpoch
type EpochStats struct {
	Epoch int

	// Episode statistics of the epoch's rollout. MeanReturn and
	// MeanLength cover completed episodes only and are zero when no
	// episode completed during the rollout.
	MeanReturn float64
	MeanLength float64
	Episodes   int

	// Losses and policy movement, averaged over the update iterations
	// that actually ran
	ActorLoss    float64
	CriticLoss   float64
	KL           float64
	ClipFraction float64

	// UpdateIters counts the update iterations that ran before the KL
	// early stop, if any, triggered
	UpdateIters  int
	EarlyStopped bool

	// Anomalies counts the non-finite values observed this epoch,
	// over both the post-processed rollout and the update losses
	Anomalies int
}

// Map returns the statistics as a flat name-to-value map suitable for
// trackers
func (e EpochStats) Map() map[string]float64 {
	earlyStopped := 0.0
	if e.EarlyStopped {
		earlyStopped = 1.0
	}
	return map[string]float64{
		"Epoch":        float64(e.Epoch),
		"MeanReturn":   e.MeanReturn,
		"MeanLength":   e.MeanLength,
		"Episodes":     float64(e.Episodes),
		"ActorLoss":    e.ActorLoss,
		"CriticLoss":   e.CriticLoss,
		"KL":           e.KL,
		"ClipFraction": e.ClipFraction,
		"UpdateIters":  float64(e.UpdateIters),
		"EarlyStopped": earlyStopped,
		"Anomalies":    float64(e.Anomalies),
	}
}

// TrainEpoch runs one full epoch: collect a rollout with the behaviour
// networks, post-process it, run the configured number of minibatch
// updates on the train networks, and synchronize the behaviour
// networks with the updated weights.
func (p *PPO) TrainEpoch() (*EpochStats, error) {
	seeds := make([]uint64, p.env.NumEnvs())
	for i := range seeds {
		seeds[i] = p.rng.Uint64()
	}
	samplerSeed := p.rng.Uint64()

	buffer, err := rollout.Collect(p.env, p, p.cfg.RolloutStepsPerEnv,
		seeds)
	if err != nil {
		return nil, fmt.Errorf("trainepoch: could not collect rollout: %v",
			err)
	}
	err = buffer.Finish(p.cfg.Gamma, p.cfg.Lambda, p.cfg.NormalizeAdvantage)
	if err != nil {
		return nil, fmt.Errorf("trainepoch: could not post-process "+
			"rollout: %v", err)
	}

	stats := &EpochStats{Epoch: p.epoch, Anomalies: buffer.Anomalies()}
	stats.MeanReturn, stats.MeanLength, stats.Episodes =
		buffer.EpisodeStats()

	batches, err := sampler.New(buffer, samplerSeed)
	if err != nil {
		return nil, fmt.Errorf("trainepoch: %v", err)
	}

	for i := 0; i < p.cfg.UpdateIters; i++ {
		batch, err := batches.SampleRandomBatch(p.cfg.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("trainepoch: %v", err)
		}

		piLoss, kl, clipFrac, stopped, err := p.updateActor(batch)
		if err != nil {
			return nil, fmt.Errorf("trainepoch: update %v: %v", i, err)
		}
		if stopped {
			// Ends the epoch's updates entirely, so this iteration's
			// critic update is skipped along with the remaining ones
			stats.EarlyStopped = true
			break
		}

		vLoss, err := p.updateCritic(batch)
		if err != nil {
			return nil, fmt.Errorf("trainepoch: update %v: %v", i, err)
		}

		stats.ActorLoss += piLoss
		stats.CriticLoss += vLoss
		stats.KL += kl
		stats.ClipFraction += clipFrac
		stats.UpdateIters++
		stats.Anomalies += floatutils.CountNonFinite(
			[]float64{piLoss, vLoss, kl},
		)
	}
	if stats.UpdateIters > 0 {
		n := float64(stats.UpdateIters)
		stats.ActorLoss /= n
		stats.CriticLoss /= n
		stats.KL /= n
		stats.ClipFraction /= n
	}

	// Synchronize the behaviour networks so the next epoch collects
	// under the updated weights
	if err := p.behaviour.Set(p.trainPolicy); err != nil {
		return nil, fmt.Errorf("trainepoch: could not synchronize "+
			"behaviour policy: %v", err)
	}
	if err := network.Set(p.vValueFn, p.trainValueFn); err != nil {
		return nil, fmt.Errorf("trainepoch: could not synchronize "+
			"behaviour value function: %v", err)
	}

	p.epoch++
	return stats, nil
}

// Train runs epochs training epochs in sequence, feeding each epoch's
// statistics to every tracker and saving the trackers once training
// finishes.
func (p *PPO) Train(epochs int, trackers ...tracker.Tracker) error {
	for i := 0; i < epochs; i++ {
		stats, err := p.TrainEpoch()
		if err != nil {
			return fmt.Errorf("train: epoch %v: %v", i, err)
		}
		for _, t := range trackers {
			t.Track(stats.Epoch, stats.Map())
		}
	}

	for _, t := range trackers {
		if err := t.Save(); err != nil {
			return fmt.Errorf("train: could not save tracker: %v", err)
		}
	}
	return nil
}

// updateActor runs one gradient computation of the clipped surrogate
// objective on a minibatch. When the approximate KL divergence between
// the behaviour policy and the train policy exceeds the early-stopping
// threshold the computed gradient is discarded and no weight update is
// applied, reported through stopped.
func (p *PPO) updateActor(batch *sampler.Batch) (loss, kl,
	clipFrac float64, stopped bool, err error) {
	if batch.Size != p.cfg.BatchSize {
		return 0, 0, 0, false, fmt.Errorf("updateactor: illegal batch "+
			"size \n\twant(%v)\n\thave(%v)", p.cfg.BatchSize, batch.Size)
	}

	err = p.trainPolicy.SetInputs(batch.Obs, batch.Action)
	if err != nil {
		return 0, 0, 0, false, fmt.Errorf("updateactor: %v", err)
	}
	if err := p.actor.bind(batch.LogP, batch.Adv); err != nil {
		return 0, 0, 0, false, fmt.Errorf("updateactor: %v", err)
	}
	if err := p.trainPolicyVM.RunAll(); err != nil {
		return 0, 0, 0, false, fmt.Errorf("updateactor: %v", err)
	}
	defer p.trainPolicyVM.Reset()

	loss = p.actor.lossVal.Data().(float64)

	// Approximate KL divergence E[log π_old(a|s) - log π(a|s)] under
	// the sampled minibatch
	newLogP := p.trainPolicy.LogPdfVal().Data().([]float64)
	for i := range newLogP {
		kl += batch.LogP[i] - newLogP[i]
	}
	kl /= float64(batch.Size)

	ratios := p.actor.ratioVal.Data().([]float64)
	for _, ratio := range ratios {
		if math.Abs(ratio-1) > p.cfg.ClipRatio {
			clipFrac++
		}
	}
	clipFrac /= float64(len(ratios))

	if p.cfg.TargetKL > 0 && kl > klStopFactor*p.cfg.TargetKL {
		return loss, kl, clipFrac, true, nil
	}

	err = p.policySolver.Step(p.trainPolicy.Model())
	if err != nil {
		return 0, 0, 0, false, fmt.Errorf("updateactor: could not apply "+
			"gradient: %v", err)
	}
	return loss, kl, clipFrac, false, nil
}

// updateCritic runs one gradient update of the value function on a
// minibatch and returns the unweighted mean squared value error
func (p *PPO) updateCritic(batch *sampler.Batch) (float64, error) {
	if batch.Size != p.cfg.BatchSize {
		return 0, fmt.Errorf("updatecritic: illegal batch size "+
			"\n\twant(%v)\n\thave(%v)", p.cfg.BatchSize, batch.Size)
	}

	if err := p.trainValueFn.SetInput(batch.Obs); err != nil {
		return 0, fmt.Errorf("updatecritic: %v", err)
	}
	if err := p.critic.bind(batch.Ret); err != nil {
		return 0, fmt.Errorf("updatecritic: %v", err)
	}
	if err := p.trainValueFnVM.RunAll(); err != nil {
		return 0, fmt.Errorf("updatecritic: %v", err)
	}
	defer p.trainValueFnVM.Reset()

	mse := p.critic.mseVal.Data().(float64)

	err := p.vSolver.Step(p.trainValueFn.Model())
	if err != nil {
		return 0, fmt.Errorf("updatecritic: could not apply gradient: %v",
			err)
	}
	return mse, nil
}
