package initwfn

import G "gorgonia.org/gorgonia"

// GaussianConfig implements a configuration of the Gaussian random
// initialization algorithm.
type GaussianConfig struct {
	Mean   float64
	StdDev float64
}

// NewGaussian returns a new Gaussian weight initializer
func NewGaussian(mean, stdDev float64) *InitWFn {
	return newInitWFn(GaussianConfig{Mean: mean, StdDev: stdDev})
}

// Type returns the type of initialization algorithm described by the
// configuration.
func (g GaussianConfig) Type() Type {
	return Gaussian
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (g GaussianConfig) Create() G.InitWFn {
	return G.Gaussian(g.Mean, g.StdDev)
}
