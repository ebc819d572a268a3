package ppo

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/goppo/network"
	"github.com/samuelfneumann/goppo/policy"
	"github.com/samuelfneumann/goppo/utils/op"
)

// actorLoss holds the graph nodes of the PPO clipped surrogate
// objective
//
//	L = -mean(min(ratio * adv, clip(ratio, 1-ε, 1+ε) * adv))
//
// built over a policy's log probability node, together with the input
// placeholders that each minibatch is bound to and the read-out values
// used for diagnostics.
type actorLoss struct {
	oldLogProb *G.Node // Behaviour log probabilities at collection time
	advantages *G.Node

	loss  *G.Node
	ratio *G.Node

	lossVal  G.Value
	ratioVal G.Value
}

// newActorLoss adds the clipped surrogate objective for pol to pol's
// graph. The surrogate is weighted by piCoef and an entropy bonus by
// entCoef; the loss is the negation of the weighted objective, so
// minimizing it maximizes the objective.
func newActorLoss(pol *policy.GaussianMLP, clipRatio, piCoef,
	entCoef float64) (*actorLoss, error) {
	g := pol.Graph()
	batch := pol.BatchSize()

	oldLogProb := G.NewVector(g, tensor.Float64, G.WithName("OldLogProb"),
		G.WithShape(batch), G.WithInit(G.Zeroes()))
	advantages := G.NewVector(g, tensor.Float64, G.WithName("Advantages"),
		G.WithShape(batch), G.WithInit(G.Zeroes()))

	// ratio = exp(log π(a|s) - log π_old(a|s))
	ratio := G.Must(G.Exp(G.Must(G.Sub(pol.LogPdfNode(), oldLogProb))))

	unclipped := G.Must(G.HadamardProd(ratio, advantages))

	clamped, err := op.Clip(ratio, 1-clipRatio, 1+clipRatio)
	if err != nil {
		return nil, fmt.Errorf("newactorloss: could not clip ratio: %v", err)
	}
	clipped := G.Must(G.HadamardProd(clamped, advantages))

	surrogate, err := op.Min(unclipped, clipped)
	if err != nil {
		return nil, fmt.Errorf("newactorloss: could not take pessimistic "+
			"branch: %v", err)
	}
	surrogateMean := G.Must(G.Mean(surrogate))

	objective := G.Must(G.Mul(G.NewConstant(piCoef), surrogateMean))
	if entCoef != 0 {
		bonus := G.Must(G.Mul(G.NewConstant(entCoef), pol.EntropyNode()))
		objective = G.Must(G.Add(objective, bonus))
	}
	loss := G.Must(G.Neg(objective))

	a := &actorLoss{
		oldLogProb: oldLogProb,
		advantages: advantages,
		loss:       loss,
		ratio:      ratio,
	}
	G.Read(a.loss, &a.lossVal)
	G.Read(a.ratio, &a.ratioVal)

	return a, nil
}

// bind sets the minibatch inputs of the loss
func (a *actorLoss) bind(oldLogProb, advantages []float64) error {
	batch := a.oldLogProb.Shape()[0]
	if len(oldLogProb) != batch || len(advantages) != batch {
		return fmt.Errorf("bind: illegal input lengths "+
			"\n\twant(%v)\n\thave(%v, %v)", batch, len(oldLogProb),
			len(advantages))
	}

	err := G.Let(a.oldLogProb, tensor.New(
		tensor.WithBacking(oldLogProb),
		tensor.WithShape(batch),
	))
	if err != nil {
		return err
	}
	return G.Let(a.advantages, tensor.New(
		tensor.WithBacking(advantages),
		tensor.WithShape(batch),
	))
}

// criticLoss holds the graph nodes of the mean squared value error
//
//	L = mean((v(s) - ret)²)
//
// No clipping is applied to the value loss.
type criticLoss struct {
	targets *G.Node
	loss    *G.Node // Scaled by vfCoef; the node gradients flow from
	mse     *G.Node

	mseVal G.Value
}

// newCriticLoss adds the value loss for valueFn to valueFn's graph,
// scaled by vfCoef
func newCriticLoss(valueFn network.NeuralNet, vfCoef float64) *criticLoss {
	g := valueFn.Graph()

	targets := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(valueFn.Prediction().Shape()...),
		G.WithName("ValueTargets"),
		G.WithInit(G.Zeroes()),
	)

	mse := G.Must(G.Sub(valueFn.Prediction(), targets))
	mse = G.Must(G.Square(mse))
	mse = G.Must(G.Mean(mse))

	loss := G.Must(G.Mul(G.NewConstant(vfCoef), mse))

	c := &criticLoss{
		targets: targets,
		loss:    loss,
		mse:     mse,
	}
	G.Read(c.mse, &c.mseVal)

	return c
}

// bind sets the minibatch return targets of the loss
func (c *criticLoss) bind(returns []float64) error {
	shape := c.targets.Shape()
	if len(returns) != shape.TotalSize() {
		return fmt.Errorf("bind: illegal target length "+
			"\n\twant(%v)\n\thave(%v)", shape.TotalSize(), len(returns))
	}

	return G.Let(c.targets, tensor.New(
		tensor.WithBacking(returns),
		tensor.WithShape(shape...),
	))
}
