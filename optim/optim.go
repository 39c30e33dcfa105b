// Copyright 2026 Lamina ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the public API for optimizers, losses and metrics.
//
// Example:
//
//	err := m.Compile(optim.SGD(0.01, 0.9), optim.MSE(), &model.CompileOptions{
//		Metrics: []string{"accuracy"},
//	})
package optim

import (
	"github.com/lamina-ml/lamina/internal/graph"
	"github.com/lamina-ml/lamina/internal/optim"
)

// SGD creates a stochastic gradient descent optimizer with momentum.
func SGD(lr, momentum float64) *optim.SGD {
	return optim.NewSGD(lr, momentum)
}

// Adam creates an Adam optimizer. Zero-valued hyperparameters fall back to
// the usual defaults.
func Adam(lr, beta1, beta2, epsilon float64) *optim.Adam {
	return optim.NewAdam(lr, beta1, beta2, epsilon)
}

// MSE is the mean squared error loss.
func MSE() graph.Loss { return optim.MeanSquaredError{} }

// MAE is the mean absolute error loss.
func MAE() graph.Loss { return optim.MeanAbsoluteError{} }

// BinaryCrossentropy scores sigmoid outputs against {0,1} targets.
func BinaryCrossentropy() graph.Loss { return optim.BinaryCrossentropy{} }

// CategoricalCrossentropy scores softmax outputs against one-hot targets.
func CategoricalCrossentropy() graph.Loss { return optim.CategoricalCrossentropy{} }

// LossByName resolves a registered loss, consulting custom objects first.
func LossByName(name string, custom graph.CustomObjects) (graph.Loss, error) {
	return graph.LossByName(name, custom)
}

// MetricByName resolves a registered metric, consulting custom objects
// first.
func MetricByName(name string, custom graph.CustomObjects) (graph.Metric, error) {
	return graph.MetricByName(name, custom)
}
