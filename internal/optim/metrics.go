package optim

import (
	"math"

	"github.com/lamina-ml/lamina/internal/graph"
	"github.com/lamina-ml/lamina/internal/tensor"
)

// Accuracy is the fraction of samples predicted correctly. Multi-column
// outputs are compared by argmax, single-column outputs by a 0.5 threshold.
type Accuracy struct{}

// Name implements graph.Metric.
func (Accuracy) Name() string { return "accuracy" }

// Compute implements graph.Metric.
func (Accuracy) Compute(yTrue, yPred *tensor.Raw) (float64, error) {
	if err := checkPair("Accuracy.Compute", yTrue, yPred); err != nil {
		return 0, err
	}
	shape := yPred.Shape()
	rows, cols := shape[0], 1
	if len(shape) > 1 {
		cols = shape[len(shape)-1]
	}
	if rows == 0 {
		return 0, graph.Errorf(graph.KindEmpty, "Accuracy.Compute", "no samples")
	}
	t, p := yTrue.AsFloat32(), yPred.AsFloat32()
	correct := 0
	for r := 0; r < rows; r++ {
		if cols == 1 {
			if (p[r] > 0.5) == (t[r] > 0.5) {
				correct++
			}
			continue
		}
		if argmaxRow(p, r, cols) == argmaxRow(t, r, cols) {
			correct++
		}
	}
	return float64(correct) / float64(rows), nil
}

func argmaxRow(v []float32, row, cols int) int {
	best := 0
	for c := 1; c < cols; c++ {
		if v[row*cols+c] > v[row*cols+best] {
			best = c
		}
	}
	return best
}

// MAEMetric reports the mean absolute error as a metric.
type MAEMetric struct{}

// Name implements graph.Metric.
func (MAEMetric) Name() string { return "mae" }

// Compute implements graph.Metric.
func (MAEMetric) Compute(yTrue, yPred *tensor.Raw) (float64, error) {
	if err := checkPair("MAEMetric.Compute", yTrue, yPred); err != nil {
		return 0, err
	}
	t, p := yTrue.AsFloat32(), yPred.AsFloat32()
	if len(p) == 0 {
		return 0, graph.Errorf(graph.KindEmpty, "MAEMetric.Compute", "no samples")
	}
	var sum float64
	for i := range p {
		sum += math.Abs(float64(p[i]) - float64(t[i]))
	}
	return sum / float64(len(p)), nil
}
