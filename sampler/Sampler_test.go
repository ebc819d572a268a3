package sampler

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goppo/rollout"
)

// newProcessedBuffer returns a post-processed buffer with obsDim =
// actDim = 1 whose observation at (t, e) is t*numEnvs + e, so that
// sampled batches reveal which cells they were gathered from
func newProcessedBuffer(t *testing.T, steps, numEnvs int) *rollout.Buffer {
	t.Helper()

	b, err := rollout.New(1, 1, steps, numEnvs)
	if err != nil {
		t.Fatal(err)
	}

	for step := 0; step <= steps; step++ {
		obs := mat.NewDense(numEnvs, 1, nil)
		actions := mat.NewDense(numEnvs, 1, nil)
		logP := make([]float64, numEnvs)
		value := make([]float64, numEnvs)
		reward := make([]float64, numEnvs)
		for e := 0; e < numEnvs; e++ {
			cell := float64(step*numEnvs + e)
			obs.Set(e, 0, cell)
			actions.Set(e, 0, -cell)
			logP[e] = cell * 0.5
			reward[e] = cell
		}
		err := b.Store(step, obs, actions, logP, value, reward,
			make([]bool, numEnvs), make([]int, numEnvs))
		if err != nil {
			t.Fatal(err)
		}
	}

	if err := b.Finish(0.99, 0.97, false); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestNewRequiresProcessedBuffer(t *testing.T) {
	b, err := rollout.New(1, 1, 4, 2)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := New(b, 1); err == nil {
		t.Error("expected an error for a buffer without training targets")
	}
}

func TestSampleRandomBatchInvalidSize(t *testing.T) {
	s, err := New(newProcessedBuffer(t, 4, 2), 1)
	if err != nil {
		t.Fatal(err)
	}

	for _, size := range []int{0, -1} {
		_, err := s.SampleRandomBatch(size)
		if err == nil {
			t.Errorf("expected an error for batch size %v", size)
		} else if !IsInvalidBatchSize(err) {
			t.Errorf("error for batch size %v should report an invalid "+
				"batch size, got %v", size, err)
		}
	}
}

// TestSampleRandomBatchGathers checks that every field of a sampled
// batch was gathered from a single buffer cell
func TestSampleRandomBatchGathers(t *testing.T) {
	steps, numEnvs := 8, 4
	buffer := newProcessedBuffer(t, steps, numEnvs)
	s, err := New(buffer, 42)
	if err != nil {
		t.Fatal(err)
	}

	batch, err := s.SampleRandomBatch(64)
	if err != nil {
		t.Fatal(err)
	}
	if batch.Size != 64 {
		t.Fatalf("batch size \n\twant(64)\n\thave(%v)", batch.Size)
	}

	for i := 0; i < batch.Size; i++ {
		cell := batch.Obs[i]
		if cell < 0 || cell >= float64(steps*numEnvs) {
			t.Fatalf("sampled index %v outside the buffer", cell)
		}
		j := int(cell)
		if batch.Action[i] != -cell || batch.LogP[i] != cell*0.5 ||
			batch.Adv[i] != buffer.Adv[j] || batch.Ret[i] != buffer.Ret[j] {
			t.Errorf("batch row %v mixes fields from different buffer "+
				"cells", i)
		}
	}
}

// TestSampleRandomBatchWithReplacement checks that one batch may be
// larger than the buffer and that it repeats cells when it is
func TestSampleRandomBatchWithReplacement(t *testing.T) {
	steps, numEnvs := 2, 2
	s, err := New(newProcessedBuffer(t, steps, numEnvs), 7)
	if err != nil {
		t.Fatal(err)
	}

	batch, err := s.SampleRandomBatch(steps * numEnvs * 8)
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[float64]bool)
	repeated := false
	for _, cell := range batch.Obs {
		if seen[cell] {
			repeated = true
			break
		}
		seen[cell] = true
	}
	if !repeated {
		t.Error("a batch larger than the buffer must repeat cells")
	}
}

// TestSampleRandomBatchUniform draws many samples and checks that
// every buffer cell is hit at a frequency near uniform
func TestSampleRandomBatchUniform(t *testing.T) {
	steps, numEnvs := 4, 3
	s, err := New(newProcessedBuffer(t, steps, numEnvs), 13)
	if err != nil {
		t.Fatal(err)
	}

	cells := steps * numEnvs
	draws := 60_000
	counts := make([]int, cells)
	for i := 0; i < draws/1000; i++ {
		batch, err := s.SampleRandomBatch(1000)
		if err != nil {
			t.Fatal(err)
		}
		for _, cell := range batch.Obs {
			counts[int(cell)]++
		}
	}

	expected := float64(draws) / float64(cells)
	for cell, count := range counts {
		// 5 standard deviations of a binomial count
		dev := 5 * math.Sqrt(expected*(1-1/float64(cells)))
		if math.Abs(float64(count)-expected) > dev {
			t.Errorf("cell %v hit %v times, expected about %v", cell,
				count, expected)
		}
	}
}

// TestSamplerDeterminism checks that equal seeds give equal sampled
// batches
func TestSamplerDeterminism(t *testing.T) {
	buffer := newProcessedBuffer(t, 6, 2)

	first, err := New(buffer, 91)
	if err != nil {
		t.Fatal(err)
	}
	second, err := New(buffer, 91)
	if err != nil {
		t.Fatal(err)
	}

	for draw := 0; draw < 5; draw++ {
		a, err := first.SampleRandomBatch(32)
		if err != nil {
			t.Fatal(err)
		}
		b, err := second.SampleRandomBatch(32)
		if err != nil {
			t.Fatal(err)
		}
		for i := range a.Obs {
			if a.Obs[i] != b.Obs[i] {
				t.Fatalf("draw %v differs between equally seeded "+
					"samplers", draw)
			}
		}
	}
}
