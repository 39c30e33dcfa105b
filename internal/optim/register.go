package optim

import (
	"github.com/lamina-ml/lamina/internal/graph"
)

func init() {
	graph.RegisterOptimizer("SGD", sgdFromConfig)
	graph.RegisterOptimizer("Adam", adamFromConfig)

	graph.RegisterLoss(MeanSquaredError{})
	graph.RegisterLoss(MeanAbsoluteError{})
	graph.RegisterLoss(BinaryCrossentropy{})
	graph.RegisterLoss(CategoricalCrossentropy{})

	graph.RegisterMetric(Accuracy{})
	graph.RegisterMetric(MAEMetric{})
}
