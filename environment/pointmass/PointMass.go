// Package pointmass implements a vectorized point mass environment
// with continuous states and actions
package pointmass

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/samuelfneumann/goppo/environment"
	"github.com/samuelfneumann/goppo/utils/floatutils"
)

// Physical constants of the point mass environment
const (
	ObsDim int = 2 // Position and velocity
	ActDim int = 1 // Force

	MinPosition float64 = -1.0
	MaxPosition float64 = 1.0
	MaxSpeed    float64 = 0.25
	MaxForce    float64 = 1.0
	Gain        float64 = 0.05 // Force to acceleration

	// Goal region. An episode ends when the mass rests near the origin
	// or when it times out.
	GoalRadius float64 = 0.05
	GoalSpeed  float64 = 0.05
	MaxSteps   int     = 200

	// Reward weights for position, velocity, and action magnitude
	positionCost float64 = 1.0
	velocityCost float64 = 0.1
	actionCost   float64 = 0.001
)

// PointMass implements a batch of point mass environments that step
// together. Each environment holds a unit mass on a one-dimensional
// track. Forces in [-MaxForce, MaxForce] accelerate the mass, and the
// agent is rewarded for bringing the mass to rest at the origin. Each
// step incurs a cost quadratic in the position, velocity, and applied
// force of the mass.
//
// Environments reset independently: a terminated environment
// immediately starts a new episode using its own random number stream,
// so two environments never share state.
type PointMass struct {
	numEnvs  int
	position []float64
	velocity []float64
	epLen    []int
	starters []distuv.Uniform
}

// New returns a batch of numEnvs point mass environments
func New(numEnvs int) (*PointMass, error) {
	if numEnvs <= 0 {
		return nil, fmt.Errorf("new: non-positive number of "+
			"environments %v", numEnvs)
	}

	return &PointMass{
		numEnvs:  numEnvs,
		position: make([]float64, numEnvs),
		velocity: make([]float64, numEnvs),
		epLen:    make([]int, numEnvs),
		starters: make([]distuv.Uniform, numEnvs),
	}, nil
}

// NumEnvs returns the number of parallel environments
func (p *PointMass) NumEnvs() int {
	return p.numEnvs
}

// ObservationSpec returns the observation specification of the
// environment
func (p *PointMass) ObservationSpec() environment.Spec {
	shape := mat.NewVecDense(ObsDim, nil)
	lowerBound := mat.NewVecDense(ObsDim, []float64{MinPosition, -MaxSpeed})
	upperBound := mat.NewVecDense(ObsDim, []float64{MaxPosition, MaxSpeed})

	return environment.Spec{
		Shape:       shape,
		Type:        environment.Observation,
		LowerBound:  lowerBound,
		UpperBound:  upperBound,
		Cardinality: environment.Continuous,
	}
}

// ActionSpec returns the action specification of the environment
func (p *PointMass) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(ActDim, nil)
	lowerBound := mat.NewVecDense(ActDim, []float64{-MaxForce})
	upperBound := mat.NewVecDense(ActDim, []float64{MaxForce})

	return environment.Spec{
		Shape:       shape,
		Type:        environment.Action,
		LowerBound:  lowerBound,
		UpperBound:  upperBound,
		Cardinality: environment.Continuous,
	}
}

// Reset restarts every environment, seeding environment e's start
// state stream with seeds[e], and returns the starting observations
func (p *PointMass) Reset(seeds []uint64) (*mat.Dense, error) {
	if len(seeds) != p.numEnvs {
		return nil, fmt.Errorf("reset: need one seed per environment "+
			"\n\twant(%v)\n\thave(%v)", p.numEnvs, len(seeds))
	}

	bounds := r1.Interval{Min: MinPosition, Max: MaxPosition}
	for e := 0; e < p.numEnvs; e++ {
		p.starters[e] = distuv.Uniform{
			Min: bounds.Min,
			Max: bounds.Max,
			Src: rand.NewSource(seeds[e]),
		}
		p.start(e)
	}

	return p.observations(), nil
}

// Step advances every environment by one timestep using the
// corresponding row of actions
func (p *PointMass) Step(actions *mat.Dense) (environment.Step, error) {
	r, c := actions.Dims()
	if r != p.numEnvs || c != ActDim {
		return environment.Step{}, fmt.Errorf("step: illegal action shape"+
			"\n\twant(%v×%v)\n\thave(%v×%v)", p.numEnvs, ActDim, r, c)
	}

	reward := make([]float64, p.numEnvs)
	done := make([]bool, p.numEnvs)
	epLen := make([]int, p.numEnvs)

	for e := 0; e < p.numEnvs; e++ {
		force := floatutils.Clip(actions.At(e, 0), -MaxForce, MaxForce)

		p.velocity[e] = floatutils.Clip(p.velocity[e]+Gain*force,
			-MaxSpeed, MaxSpeed)
		p.position[e] = floatutils.Clip(p.position[e]+p.velocity[e],
			MinPosition, MaxPosition)
		p.epLen[e]++

		reward[e] = -(positionCost*p.position[e]*p.position[e] +
			velocityCost*p.velocity[e]*p.velocity[e] +
			actionCost*force*force)

		atGoal := math.Abs(p.position[e]) < GoalRadius &&
			math.Abs(p.velocity[e]) < GoalSpeed
		done[e] = atGoal || p.epLen[e] >= MaxSteps
		epLen[e] = p.epLen[e]

		if done[e] {
			p.start(e)
		}
	}

	return environment.Step{
		Obs:    p.observations(),
		Reward: reward,
		Done:   done,
		EpLen:  epLen,
	}, nil
}

// start begins a new episode in environment e
func (p *PointMass) start(e int) {
	p.position[e] = p.starters[e].Rand()
	p.velocity[e] = 0.0
	p.epLen[e] = 0
}

// observations returns the current observation of every environment,
// one row per environment
func (p *PointMass) observations() *mat.Dense {
	obs := mat.NewDense(p.numEnvs, ObsDim, nil)
	for e := 0; e < p.numEnvs; e++ {
		obs.Set(e, 0, p.position[e])
		obs.Set(e, 1, p.velocity[e])
	}
	return obs
}
