package optim

import (
	"math"

	"github.com/lamina-ml/lamina/internal/graph"
	"github.com/lamina-ml/lamina/internal/tensor"
)

func checkPair(op string, yTrue, yPred *tensor.Raw) error {
	if !yTrue.Shape().Equal(yPred.Shape()) {
		return graph.Errorf(graph.KindShape, op,
			"target shape %s does not match prediction shape %s", yTrue.Shape(), yPred.Shape())
	}
	return nil
}

// MeanSquaredError is the mean of squared differences over all elements.
type MeanSquaredError struct{}

// Name implements graph.Loss.
func (MeanSquaredError) Name() string { return "mean_squared_error" }

// Forward returns the loss and d(loss)/d(yPred).
func (MeanSquaredError) Forward(yTrue, yPred *tensor.Raw) (float64, *tensor.Raw, error) {
	if err := checkPair("MeanSquaredError.Forward", yTrue, yPred); err != nil {
		return 0, nil, err
	}
	t, p := yTrue.AsFloat32(), yPred.AsFloat32()
	grad, err := tensor.NewRaw(yPred.Shape(), yPred.DType())
	if err != nil {
		return 0, nil, err
	}
	g := grad.AsFloat32()
	n := float64(len(p))
	var sum float64
	for i := range p {
		d := float64(p[i]) - float64(t[i])
		sum += d * d
		g[i] = float32(2.0 * d / n)
	}
	return sum / n, grad, nil
}

// MeanAbsoluteError is the mean of absolute differences over all elements.
type MeanAbsoluteError struct{}

// Name implements graph.Loss.
func (MeanAbsoluteError) Name() string { return "mean_absolute_error" }

// Forward returns the loss and d(loss)/d(yPred).
func (MeanAbsoluteError) Forward(yTrue, yPred *tensor.Raw) (float64, *tensor.Raw, error) {
	if err := checkPair("MeanAbsoluteError.Forward", yTrue, yPred); err != nil {
		return 0, nil, err
	}
	t, p := yTrue.AsFloat32(), yPred.AsFloat32()
	grad, err := tensor.NewRaw(yPred.Shape(), yPred.DType())
	if err != nil {
		return 0, nil, err
	}
	g := grad.AsFloat32()
	n := float64(len(p))
	var sum float64
	for i := range p {
		d := float64(p[i]) - float64(t[i])
		sum += math.Abs(d)
		switch {
		case d > 0:
			g[i] = float32(1.0 / n)
		case d < 0:
			g[i] = float32(-1.0 / n)
		}
	}
	return sum / n, grad, nil
}

// BinaryCrossentropy scores sigmoid outputs against {0,1} targets.
// Predictions are clipped away from 0 and 1 for numerical stability.
type BinaryCrossentropy struct{}

// Name implements graph.Loss.
func (BinaryCrossentropy) Name() string { return "binary_crossentropy" }

// Forward returns the loss and d(loss)/d(yPred).
func (BinaryCrossentropy) Forward(yTrue, yPred *tensor.Raw) (float64, *tensor.Raw, error) {
	if err := checkPair("BinaryCrossentropy.Forward", yTrue, yPred); err != nil {
		return 0, nil, err
	}
	const eps = 1e-7
	t, p := yTrue.AsFloat32(), yPred.AsFloat32()
	grad, err := tensor.NewRaw(yPred.Shape(), yPred.DType())
	if err != nil {
		return 0, nil, err
	}
	g := grad.AsFloat32()
	n := float64(len(p))
	var sum float64
	for i := range p {
		pi := math.Min(math.Max(float64(p[i]), eps), 1.0-eps)
		ti := float64(t[i])
		sum -= ti*math.Log(pi) + (1.0-ti)*math.Log(1.0-pi)
		g[i] = float32((pi - ti) / (pi * (1.0 - pi) * n))
	}
	return sum / n, grad, nil
}

// CategoricalCrossentropy scores softmax outputs against one-hot targets,
// averaged over the batch axis.
type CategoricalCrossentropy struct{}

// Name implements graph.Loss.
func (CategoricalCrossentropy) Name() string { return "categorical_crossentropy" }

// Forward returns the loss and d(loss)/d(yPred).
func (CategoricalCrossentropy) Forward(yTrue, yPred *tensor.Raw) (float64, *tensor.Raw, error) {
	if err := checkPair("CategoricalCrossentropy.Forward", yTrue, yPred); err != nil {
		return 0, nil, err
	}
	const eps = 1e-7
	t, p := yTrue.AsFloat32(), yPred.AsFloat32()
	grad, err := tensor.NewRaw(yPred.Shape(), yPred.DType())
	if err != nil {
		return 0, nil, err
	}
	g := grad.AsFloat32()
	batch := float64(yPred.Shape()[0])
	var sum float64
	for i := range p {
		pi := math.Min(math.Max(float64(p[i]), eps), 1.0-eps)
		ti := float64(t[i])
		if ti != 0 {
			sum -= ti * math.Log(pi)
		}
		g[i] = float32(-ti / (pi * batch))
	}
	return sum / batch, grad, nil
}

// ByName resolves a loss name, consulting custom objects first.
func ByName(name string, custom graph.CustomObjects) (graph.Loss, error) {
	return graph.LossByName(name, custom)
}
