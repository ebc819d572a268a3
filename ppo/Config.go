package ppo

import (
	"errors"
	"fmt"

	"github.com/samuelfneumann/goppo/utils/floatutils"
)

var errInvalidConfig error = errors.New("invalid configuration")

// IsConfigurationError returns whether or not an error reports an
// invalid hyperparameter. Such errors are fatal and are detected
// before any collection or computation begins.
func IsConfigurationError(err error) bool {
	return errors.Is(err, errInvalidConfig)
}

// Config holds the hyperparameters of the PPO algorithm
type Config struct {
	// NormalizeAdvantage standardizes each epoch's advantage estimates
	// to mean 0 and standard deviation 1 over the flattened
	// (timestep × environment) set before they are used as targets
	NormalizeAdvantage bool

	Gamma  float64 // Discount factor ℽ ∈ (0, 1]
	Lambda float64 // λ for GAE(λ) ∈ [0, 1]

	// ClipRatio bounds how far one update can move the probability
	// ratio π(a|s) / π_old(a|s) from 1
	ClipRatio float64

	PiCoef  float64 // Weight of the surrogate objective
	VFCoef  float64 // Weight of the value function loss
	EntCoef float64 // Weight of the policy entropy bonus

	// TargetKL stops an epoch's remaining update iterations once the
	// mean approximate KL divergence between the behaviour and updated
	// policies passes 1.5 × TargetKL. Set to 0 to never stop early.
	TargetKL float64

	RolloutStepsPerEnv int // Timesteps collected per environment per epoch
	UpdateIters        int // Gradient updates per epoch
	BatchSize          int // Transitions per sampled minibatch
}

// Default returns a Config with commonly used hyperparameter values
func Default() Config {
	return Config{
		NormalizeAdvantage: true,
		Gamma:              0.99,
		Lambda:             0.97,
		ClipRatio:          0.2,
		PiCoef:             1.0,
		VFCoef:             1.0,
		EntCoef:            0.0,
		TargetKL:           0.0,
		RolloutStepsPerEnv: 1024,
		UpdateIters:        80,
		BatchSize:          256,
	}
}

// Validate returns an error describing the first illegal
// hyperparameter found, if any
func (c Config) Validate() error {
	if c.Gamma <= 0 || c.Gamma > 1 || !floatutils.Finite(c.Gamma) {
		return fmt.Errorf("validate: %w: gamma %v ∉ (0, 1]",
			errInvalidConfig, c.Gamma)
	}
	if c.Lambda < 0 || c.Lambda > 1 || !floatutils.Finite(c.Lambda) {
		return fmt.Errorf("validate: %w: lambda %v ∉ [0, 1]",
			errInvalidConfig, c.Lambda)
	}
	if c.ClipRatio <= 0 || !floatutils.Finite(c.ClipRatio) {
		return fmt.Errorf("validate: %w: non-positive clip ratio %v",
			errInvalidConfig, c.ClipRatio)
	}
	if c.RolloutStepsPerEnv <= 0 {
		return fmt.Errorf("validate: %w: non-positive rollout steps per "+
			"environment %v", errInvalidConfig, c.RolloutStepsPerEnv)
	}
	if c.UpdateIters <= 0 {
		return fmt.Errorf("validate: %w: non-positive update iterations %v",
			errInvalidConfig, c.UpdateIters)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("validate: %w: non-positive batch size %v",
			errInvalidConfig, c.BatchSize)
	}
	if c.TargetKL < 0 || !floatutils.Finite(c.TargetKL) {
		return fmt.Errorf("validate: %w: negative target KL %v",
			errInvalidConfig, c.TargetKL)
	}
	return nil
}
