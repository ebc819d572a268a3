// Package network implements the neural network function
// approximators that actors and critics are parameterized by
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// NeuralNet implements a neural network whose forward pass lives in a
// Gorgonia expression graph
type NeuralNet interface {
	Graph() *G.ExprGraph

	// CloneWithBatch clones the network onto a fresh graph with a new
	// input batch size. Weights are copied at clone time and do not
	// stay synchronized afterwards.
	CloneWithBatch(int) (NeuralNet, error)

	BatchSize() int
	Features() int
	Outputs() int

	// SetInput sets the value of the input node before running the
	// forward pass. Input should be constructed in row major order.
	SetInput([]float64) error

	// Learnables returns the learnable nodes of the network
	Learnables() G.Nodes

	// Model returns the learnable nodes with their gradients
	Model() []G.ValueGrad

	// Output returns the value of the network's prediction after the
	// graph has been run
	Output() G.Value

	// Prediction returns the node of the computational graph that
	// stores the network's prediction
	Prediction() *G.Node
}

// Set sets the weights of dest to be equal to the weights of source.
// The two networks must share an architecture but may differ in batch
// size and graph.
func Set(dest, source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("set: differing numbers of learnables "+
			"\n\twant(%v)\n\thave(%v)", len(nodes), len(sourceNodes))
	}

	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}
