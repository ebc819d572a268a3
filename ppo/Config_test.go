package ppo

import (
	"math"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default configuration should validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		adjust func(*Config)
	}{
		{"zero gamma", func(c *Config) { c.Gamma = 0 }},
		{"gamma above one", func(c *Config) { c.Gamma = 1.1 }},
		{"NaN gamma", func(c *Config) { c.Gamma = math.NaN() }},
		{"negative lambda", func(c *Config) { c.Lambda = -0.1 }},
		{"lambda above one", func(c *Config) { c.Lambda = 1.1 }},
		{"zero clip ratio", func(c *Config) { c.ClipRatio = 0 }},
		{"negative clip ratio", func(c *Config) { c.ClipRatio = -0.2 }},
		{"infinite clip ratio", func(c *Config) { c.ClipRatio = math.Inf(1) }},
		{"zero rollout steps", func(c *Config) { c.RolloutStepsPerEnv = 0 }},
		{"zero update iterations", func(c *Config) { c.UpdateIters = 0 }},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
		{"negative target KL", func(c *Config) { c.TargetKL = -0.01 }},
	}

	for _, test := range tests {
		config := Default()
		test.adjust(&config)

		err := config.Validate()
		if err == nil {
			t.Errorf("%v: expected an error", test.name)
		} else if !IsConfigurationError(err) {
			t.Errorf("%v: error should report an invalid configuration, "+
				"got %v", test.name, err)
		}
	}
}
