// Package sampler implements minibatch sampling from an assembled
// rollout buffer
package sampler

import (
	"errors"
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/goppo/rollout"
)

var errInvalidBatchSize error = errors.New("non-positive batch size")

// IsInvalidBatchSize returns whether or not an error reports an
// illegal minibatch size
func IsInvalidBatchSize(err error) bool {
	return errors.Is(err, errInvalidBatchSize)
}

// Batch holds one minibatch of transitions gathered from a rollout
// buffer. Every field's leading dimension equals Size; Obs and Action
// are row major.
type Batch struct {
	Size   int
	Obs    []float64
	Action []float64
	LogP   []float64
	Adv    []float64
	Ret    []float64
}

// BufferSampler draws random minibatches from a post-processed rollout
// buffer. Every draw selects (timestep, environment) index pairs
// independently and uniformly with replacement: a given transition may
// appear several times in one batch or not at all, and repeated draws
// give probabilistic rather than full-pass coverage of the buffer.
// This is deliberate - updates here are minibatch SGD over
// randomly-drawn samples, not shuffled full epochs.
type BufferSampler struct {
	buffer     *rollout.Buffer
	bufferSize int // Timestep dimension of the buffer
	numEnvs    int
	rng        *rand.Rand
}

// New creates and returns a BufferSampler over a post-processed
// buffer. The seed fully determines the sequence of sampled indices.
func New(buffer *rollout.Buffer, seed uint64) (*BufferSampler, error) {
	if !buffer.Processed() {
		return nil, fmt.Errorf("new: buffer must be post-processed " +
			"before sampling")
	}

	return &BufferSampler{
		buffer:     buffer,
		bufferSize: buffer.Steps(),
		numEnvs:    buffer.NumEnvs(),
		rng:        rand.New(rand.NewSource(seed)),
	}, nil
}

// SampleRandomBatch draws batchSize (timestep, environment) index
// pairs uniformly with replacement and gathers every buffer field at
// those coordinates.
func (s *BufferSampler) SampleRandomBatch(batchSize int) (*Batch, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("sampleRandomBatch: %w %v",
			errInvalidBatchSize, batchSize)
	}

	obsDim := s.buffer.ObsDim()
	actDim := s.buffer.ActDim()
	batch := &Batch{
		Size:   batchSize,
		Obs:    make([]float64, batchSize*obsDim),
		Action: make([]float64, batchSize*actDim),
		LogP:   make([]float64, batchSize),
		Adv:    make([]float64, batchSize),
		Ret:    make([]float64, batchSize),
	}

	for i := 0; i < batchSize; i++ {
		t := s.rng.Intn(s.bufferSize)
		e := s.rng.Intn(s.numEnvs)
		cell := t*s.numEnvs + e

		copy(batch.Obs[i*obsDim:(i+1)*obsDim],
			s.buffer.Obs[cell*obsDim:(cell+1)*obsDim])
		copy(batch.Action[i*actDim:(i+1)*actDim],
			s.buffer.Action[cell*actDim:(cell+1)*actDim])
		batch.LogP[i] = s.buffer.LogP[cell]
		batch.Adv[i] = s.buffer.Adv[cell]
		batch.Ret[i] = s.buffer.Ret[cell]
	}

	return batch, nil
}
