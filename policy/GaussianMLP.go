// Package policy implements stochastic policies parameterized by
// neural networks
package policy

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/goppo/agent"
	"github.com/samuelfneumann/goppo/network"
)

// Compile-time interface satisfaction check
var _ agent.LogPdfOfer = (*GaussianMLP)(nil)

// For stability, the standard deviation of the Gaussian distribution
// should be offset from 0.
const stdOffset float64 = 1e-3

const log2Pi float64 = 1.8378770664093453 // ln(2π)

// GaussianMLP implements a diagonal Gaussian policy whose mean is
// predicted by an MLP and whose log standard deviation is a learned,
// state-independent vector.
//
// Actions are selected by sampling from the standard normal
// ɛ ~ N(0, 1) and computing action := μ + σ * ɛ. Given a batch of
// externally inputted actions and the states they were taken in, the
// policy can calculate the log probability of each action as a graph
// node, so that policy-gradient losses can be differentiated with
// respect to the policy's weights. The gradient is never computed
// through the action selection process itself.
type GaussianMLP struct {
	net    network.NeuralNet // Predicts the mean
	logStd *G.Node
	std    *G.Node

	actions     *G.Node // Externally inputted actions
	logPdfNode  *G.Node
	entropyNode *G.Node

	logPdfVal  G.Value
	entropyVal G.Value
	stdVal     G.Value

	actionDims int
	batch      int

	// Architecture, retained for cloning
	hiddenSizes []int
	biases      []bool
	activations []*network.Activation
	init        G.InitWFn

	vm     G.VM // Lazily created, for action selection only
	normal distuv.Normal
}

// NewGaussianMLP returns a new GaussianMLP policy over observations of
// features dimensions and actions of actionDims dimensions, operating
// on batch input rows at a time. The hiddenSizes, biases, and
// activations parameters define the mean network as in network.NewMLP,
// and init determines its weight initialization scheme. The seed
// determines the stream of standard normal noise used to select
// actions; equal seeds give equal action sequences for equal weights
// and observations.
func NewGaussianMLP(features, actionDims, batch int, hiddenSizes []int,
	biases []bool, activations []*network.Activation, init G.InitWFn,
	seed uint64) (*GaussianMLP, error) {
	g := G.NewGraph()

	net, err := network.NewMLP(features, batch, actionDims, g, hiddenSizes,
		biases, activations, init)
	if err != nil {
		return nil, fmt.Errorf("newgaussianmlp: could not create mean "+
			"network: %v", err)
	}

	logStd := G.NewMatrix(g, tensor.Float64, G.WithShape(1, actionDims),
		G.WithName("LogStd"), G.WithInit(G.Zeroes()))

	// Offset the standard deviation for numerical stability
	offset := G.NewConstant(stdOffset)
	std := G.Must(G.Exp(logStd))
	std = G.Must(G.Add(offset, std))

	actions := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, actionDims),
		G.WithName("InputActions"), G.WithInit(G.Zeroes()))

	pol := &GaussianMLP{
		net:         net,
		logStd:      logStd,
		std:         std,
		actions:     actions,
		actionDims:  actionDims,
		batch:       batch,
		hiddenSizes: hiddenSizes,
		biases:      biases,
		activations: activations,
		init:        init,
		normal: distuv.Normal{
			Mu:    0.0,
			Sigma: 1.0,
			Src:   rand.NewSource(seed),
		},
	}
	pol.logPdfNode = logPdf(net.Prediction(), std, actions)
	pol.entropyNode = entropy(std, actionDims)

	G.Read(pol.logPdfNode, &pol.logPdfVal)
	G.Read(pol.entropyNode, &pol.entropyVal)
	G.Read(std, &pol.stdVal)

	return pol, nil
}

// logPdf adds nodes to the computational graph that calculate the log
// probability density of each row of actions under a diagonal Gaussian
// with the given mean and standard deviation:
//
//	log p(a) = -1/2 Σ((a - μ)/σ)² - Σ log σ - k/2 log(2π)
//
// The mean has shape (batch, k), std has shape (1, k) and is broadcast
// across the batch, and the result has shape (batch,).
func logPdf(mean, std, actions *G.Node) *G.Node {
	k := float64(mean.Shape()[1])

	diff := G.Must(G.Sub(actions, mean))
	z := G.Must(G.BroadcastHadamardDiv(diff, std, nil, []byte{0}))
	squares := G.Must(G.Square(z))
	rowSums := G.Must(G.Sum(squares, 1))

	negativeHalf := G.NewConstant(-0.5)
	logPdf := G.Must(G.Mul(negativeHalf, rowSums))

	sumLogStd := G.Must(G.Sum(G.Must(G.Log(std))))
	logPdf = G.Must(G.Sub(logPdf, sumLogStd))

	normalizer := G.NewConstant(0.5 * k * log2Pi)
	return G.Must(G.Sub(logPdf, normalizer))
}

// entropy adds nodes to the computational graph that calculate the
// differential entropy of a diagonal Gaussian with the given standard
// deviation: k/2 (1 + log(2π)) + Σ log σ. The entropy does not depend
// on the state, so the result is a scalar shared by every batch row.
func entropy(std *G.Node, actionDims int) *G.Node {
	sumLogStd := G.Must(G.Sum(G.Must(G.Log(std))))
	c := G.NewConstant(0.5 * float64(actionDims) * (1.0 + log2Pi))
	return G.Must(G.Add(c, sumLogStd))
}

// Graph returns the computational graph holding the policy
func (p *GaussianMLP) Graph() *G.ExprGraph {
	return p.net.Graph()
}

// LogPdfNode returns the node that calculates the log probability of
// the externally inputted actions
func (p *GaussianMLP) LogPdfNode() *G.Node {
	return p.logPdfNode
}

// EntropyNode returns the node that calculates the entropy of the
// policy distribution
func (p *GaussianMLP) EntropyNode() *G.Node {
	return p.entropyNode
}

// LogPdfVal returns the value of the node returned by LogPdfNode()
// after the graph has been run
func (p *GaussianMLP) LogPdfVal() G.Value {
	return p.logPdfVal
}

// EntropyVal returns the value of the node returned by EntropyNode()
// after the graph has been run
func (p *GaussianMLP) EntropyVal() G.Value {
	return p.entropyVal
}

// ActionDims returns the number of action dimensions
func (p *GaussianMLP) ActionDims() int {
	return p.actionDims
}

// BatchSize returns the number of input rows the policy operates on
func (p *GaussianMLP) BatchSize() int {
	return p.batch
}

// Features returns the number of features in a single observation
func (p *GaussianMLP) Features() int {
	return p.net.Features()
}

// SetInputs sets the observation and action inputs of the log
// probability calculation. Both must be in row major order with
// leading dimension equal to the policy's batch size.
func (p *GaussianMLP) SetInputs(obs, actions []float64) error {
	if len(actions) != p.batch*p.actionDims {
		return fmt.Errorf("setinputs: invalid number of actions"+
			"\n\twant(%v)\n\thave(%v)", p.batch*p.actionDims, len(actions))
	}
	if err := p.net.SetInput(obs); err != nil {
		return fmt.Errorf("setinputs: %v", err)
	}

	actionsTensor := tensor.New(
		tensor.WithBacking(actions),
		tensor.WithShape(p.batch, p.actionDims),
	)
	return G.Let(p.actions, actionsTensor)
}

// Learnables returns the learnable nodes of the policy: the mean
// network's weights and the log standard deviation
func (p *GaussianMLP) Learnables() G.Nodes {
	netLearnables := p.net.Learnables()
	learnables := make(G.Nodes, 0, len(netLearnables)+1)
	learnables = append(learnables, netLearnables...)
	return append(learnables, p.logStd)
}

// Model returns the learnable nodes with their gradients
func (p *GaussianMLP) Model() []G.ValueGrad {
	netModel := p.net.Model()
	model := make([]G.ValueGrad, 0, len(netModel)+1)
	model = append(model, netModel...)
	return append(model, p.logStd)
}

// SelectActions runs the policy's forward pass on a batch of
// observations, one row per environment, and samples one action row
// per observation together with its log probability under the policy
// as it currently stands.
func (p *GaussianMLP) SelectActions(obs *mat.Dense) (*mat.Dense, []float64,
	error) {
	r, c := obs.Dims()
	if r != p.batch || c != p.net.Features() {
		return nil, nil, fmt.Errorf("selectactions: illegal obs shape"+
			"\n\twant(%v×%v)\n\thave(%v×%v)", p.batch, p.net.Features(), r, c)
	}

	flat := make([]float64, r*c)
	for i := 0; i < r; i++ {
		copy(flat[i*c:(i+1)*c], obs.RawRowView(i))
	}
	if err := p.net.SetInput(flat); err != nil {
		return nil, nil, fmt.Errorf("selectactions: %v", err)
	}

	if p.vm == nil {
		p.vm = G.NewTapeMachine(p.Graph())
	}
	if err := p.vm.RunAll(); err != nil {
		return nil, nil, fmt.Errorf("selectactions: %v", err)
	}
	mean := p.net.Output().Data().([]float64)
	std := p.stdVal.Data().([]float64)
	p.vm.Reset()

	// action := μ + σ * ɛ, with per-action log probability computed in
	// closed form from the same μ and σ the graph produced
	actions := mat.NewDense(p.batch, p.actionDims, nil)
	logProb := make([]float64, p.batch)
	for i := 0; i < p.batch; i++ {
		lp := -0.5 * float64(p.actionDims) * log2Pi
		for j := 0; j < p.actionDims; j++ {
			eps := p.normal.Rand()
			a := mean[i*p.actionDims+j] + std[j]*eps
			actions.Set(i, j, a)

			lp += -0.5*eps*eps - math.Log(std[j])
		}
		logProb[i] = lp
	}

	return actions, logProb, nil
}

// CloneWithBatch clones the policy, together with its current weight
// values, onto a fresh graph with a new input batch size. The clone's
// action noise stream is seeded independently by seed.
func (p *GaussianMLP) CloneWithBatch(batch int,
	seed uint64) (*GaussianMLP, error) {
	clone, err := NewGaussianMLP(p.net.Features(), p.actionDims, batch,
		p.hiddenSizes, p.biases, p.activations, p.init, seed)
	if err != nil {
		return nil, fmt.Errorf("clonewithbatch: %v", err)
	}
	if err := clone.Set(p); err != nil {
		return nil, fmt.Errorf("clonewithbatch: %v", err)
	}
	return clone, nil
}

// Set sets the weights of the policy to be equal to the weights of
// another policy with the same architecture
func (p *GaussianMLP) Set(source *GaussianMLP) error {
	if err := network.Set(p.net, source.net); err != nil {
		return fmt.Errorf("set: %v", err)
	}

	logStd := source.logStd.Clone()
	return G.Let(p.logStd, logStd.(*G.Node).Value())
}
