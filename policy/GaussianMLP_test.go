package policy

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"

	"github.com/samuelfneumann/goppo/network"
)

const tolerance float64 = 1e-10

// zeroGaussian returns a policy with no hidden layers and all weights
// zero, so the action distribution is N(0, (1 + stdOffset)²) for every
// observation
func zeroGaussian(t *testing.T, actionDims, batch int,
	seed uint64) *GaussianMLP {
	t.Helper()

	pol, err := NewGaussianMLP(2, actionDims, batch, nil, nil, nil,
		G.Zeroes(), seed)
	if err != nil {
		t.Fatal(err)
	}
	return pol
}

// TestLogPdf checks the graph's log probability against the closed
// form density of a diagonal Gaussian
func TestLogPdf(t *testing.T) {
	batch, actionDims := 3, 2
	pol := zeroGaussian(t, actionDims, batch, 11)

	obs := make([]float64, batch*2)
	actions := []float64{-1.0, 0.5, 0.0, 0.0, 2.0, -0.25}
	if err := pol.SetInputs(obs, actions); err != nil {
		t.Fatal(err)
	}

	vm := G.NewTapeMachine(pol.Graph())
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	std := 1.0 + stdOffset
	logPdf := pol.LogPdfVal().Data().([]float64)
	for i := 0; i < batch; i++ {
		expected := -0.5 * float64(actionDims) * log2Pi
		for j := 0; j < actionDims; j++ {
			a := actions[i*actionDims+j]
			expected += -0.5*(a/std)*(a/std) - math.Log(std)
		}
		if math.Abs(logPdf[i]-expected) > tolerance {
			t.Errorf("log probability %v \n\twant(%v)\n\thave(%v)", i,
				expected, logPdf[i])
		}
	}

	// Differential entropy of the same Gaussian
	expectedEntropy := 0.5*float64(actionDims)*(1.0+log2Pi) +
		float64(actionDims)*math.Log(std)
	entropy := pol.EntropyVal().Data().(float64)
	if math.Abs(entropy-expectedEntropy) > tolerance {
		t.Errorf("entropy \n\twant(%v)\n\thave(%v)", expectedEntropy,
			entropy)
	}
}

// TestSelectActionsDeterminism checks that equally seeded policies
// with equal weights select equal actions with equal log probabilities
func TestSelectActionsDeterminism(t *testing.T) {
	batch, actionDims := 4, 1
	first := zeroGaussian(t, actionDims, batch, 23)
	second := zeroGaussian(t, actionDims, batch, 23)

	obs := mat.NewDense(batch, 2, []float64{
		0.1, -0.2,
		0.0, 0.5,
		-1.0, 1.0,
		0.25, 0.25,
	})

	for draw := 0; draw < 3; draw++ {
		aActions, aLogP, err := first.SelectActions(obs)
		if err != nil {
			t.Fatal(err)
		}
		bActions, bLogP, err := second.SelectActions(obs)
		if err != nil {
			t.Fatal(err)
		}

		for i := 0; i < batch; i++ {
			if aActions.At(i, 0) != bActions.At(i, 0) {
				t.Fatalf("draw %v: actions differ between equally seeded "+
					"policies", draw)
			}
			if aLogP[i] != bLogP[i] {
				t.Fatalf("draw %v: log probabilities differ between "+
					"equally seeded policies", draw)
			}
		}
	}
}

// TestSelectActionsLogPdfConsistency checks that the log probability
// reported during action selection agrees with the one the graph
// assigns to the same actions
func TestSelectActionsLogPdfConsistency(t *testing.T) {
	batch, actionDims := 4, 2
	pol := zeroGaussian(t, actionDims, batch, 101)

	obsData := make([]float64, batch*2)
	obs := mat.NewDense(batch, 2, obsData)
	actions, logP, err := pol.SelectActions(obs)
	if err != nil {
		t.Fatal(err)
	}

	flat := make([]float64, batch*actionDims)
	for i := 0; i < batch; i++ {
		copy(flat[i*actionDims:(i+1)*actionDims], actions.RawRowView(i))
	}
	if err := pol.SetInputs(obsData, flat); err != nil {
		t.Fatal(err)
	}

	vm := G.NewTapeMachine(pol.Graph())
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	graphLogP := pol.LogPdfVal().Data().([]float64)
	for i := range logP {
		if math.Abs(logP[i]-graphLogP[i]) > tolerance {
			t.Errorf("log probability %v \n\twant(%v)\n\thave(%v)", i,
				graphLogP[i], logP[i])
		}
	}
}

// TestCloneWithBatchAndSet checks that clones carry the source's
// weights and that Set copies weights between same-architecture
// policies
func TestCloneWithBatchAndSet(t *testing.T) {
	source, err := NewGaussianMLP(2, 1, 4, []int{8}, []bool{true},
		[]*network.Activation{network.TanH()}, G.GlorotN(1.0), 3)
	if err != nil {
		t.Fatal(err)
	}

	clone, err := source.CloneWithBatch(2, 17)
	if err != nil {
		t.Fatal(err)
	}
	if clone.BatchSize() != 2 {
		t.Fatalf("clone batch size \n\twant(2)\n\thave(%v)",
			clone.BatchSize())
	}
	assertSameWeights(t, source, clone, "clone")

	other, err := NewGaussianMLP(2, 1, 4, []int{8}, []bool{true},
		[]*network.Activation{network.TanH()}, G.Zeroes(), 29)
	if err != nil {
		t.Fatal(err)
	}
	if err := other.Set(source); err != nil {
		t.Fatal(err)
	}
	assertSameWeights(t, source, other, "set")
}

func assertSameWeights(t *testing.T, source, dest *GaussianMLP,
	op string) {
	t.Helper()

	sourceLearnables := source.Learnables()
	destLearnables := dest.Learnables()
	if len(sourceLearnables) != len(destLearnables) {
		t.Fatalf("%v: differing numbers of learnables "+
			"\n\twant(%v)\n\thave(%v)", op, len(sourceLearnables),
			len(destLearnables))
	}

	for i := range sourceLearnables {
		want := sourceLearnables[i].Value().Data().([]float64)
		have := destLearnables[i].Value().Data().([]float64)
		if len(want) != len(have) {
			t.Fatalf("%v: learnable %v sizes differ", op,
				sourceLearnables[i].Name())
		}
		for j := range want {
			if want[j] != have[j] {
				t.Errorf("%v: learnable %v differs at %v "+
					"\n\twant(%v)\n\thave(%v)", op,
					sourceLearnables[i].Name(), j, want[j], have[j])
				break
			}
		}
	}
}
