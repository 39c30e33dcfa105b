package graph

import (
	"sync"
	"sync/atomic"

	"github.com/lamina-ml/lamina/internal/tensor"
)

// Generator yields training batches on demand. Implementations do not need
// to be safe for concurrent use; the prefetch queue serializes Next calls.
type Generator interface {
	Next() (x, y *tensor.Raw, err error)
}

// GeneratorOptions configures generator-driven loops.
type GeneratorOptions struct {
	// StepsPerEpoch is the number of batches per epoch in FitGenerator.
	StepsPerEpoch int
	Epochs        int
	// MaxQueueSize bounds the prefetch queue. Defaults to 10.
	MaxQueueSize int
	// Workers is the number of goroutines pulling from the generator.
	// Defaults to 1.
	Workers int
}

func (o *GeneratorOptions) queueSize() int {
	if o == nil || o.MaxQueueSize <= 0 {
		return 10
	}
	return o.MaxQueueSize
}

func (o *GeneratorOptions) workers() int {
	if o == nil || o.Workers <= 0 {
		return 1
	}
	return o.Workers
}

type genBatch struct {
	x, y *tensor.Raw
	err  error
}

// pumpBatches pulls exactly steps batches from the generator into a bounded
// queue. The queue is closed once all batches are delivered; cancel stops
// the workers early.
func pumpBatches(g Generator, steps int, opts *GeneratorOptions) (<-chan genBatch, func()) {
	queue := make(chan genBatch, opts.queueSize())
	done := make(chan struct{})
	var cancelOnce sync.Once
	cancel := func() { cancelOnce.Do(func() { close(done) }) }

	var mu sync.Mutex
	var taken int64
	var wg sync.WaitGroup
	for i := 0; i < opts.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if atomic.AddInt64(&taken, 1) > int64(steps) {
					return
				}
				mu.Lock()
				x, y, err := g.Next()
				mu.Unlock()
				select {
				case queue <- genBatch{x: x, y: y, err: err}:
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(queue)
	}()
	return queue, cancel
}

// FitGenerator trains the model on batches pulled from the generator,
// StepsPerEpoch batches per epoch.
func (m *Model) FitGenerator(g Generator, opts *GeneratorOptions) (*History, error) {
	const op = "Model.FitGenerator"
	if err := m.MakeTrainFunction(); err != nil {
		return nil, err
	}
	if opts == nil || opts.StepsPerEpoch <= 0 {
		return nil, Errorf(KindValidation, op, "StepsPerEpoch must be positive")
	}
	epochs := 1
	if opts.Epochs > 0 {
		epochs = opts.Epochs
	}
	hist := &History{Metrics: make(map[string][]float64)}
	keys := m.MetricKeys()
	for epoch := 0; epoch < epochs; epoch++ {
		queue, cancel := pumpBatches(g, opts.StepsPerEpoch, opts)
		sums := make([]float64, len(keys))
		steps := 0
		var stepErr error
		for b := range queue {
			if b.err != nil {
				stepErr = b.err
				break
			}
			scores, err := m.TrainOnBatch(b.x, b.y)
			if err != nil {
				stepErr = err
				break
			}
			for i, s := range scores {
				sums[i] += s
			}
			steps++
		}
		cancel()
		if stepErr != nil {
			return nil, stepErr
		}
		hist.Epochs = append(hist.Epochs, epoch)
		for i, k := range keys {
			hist.Metrics[k] = append(hist.Metrics[k], sums[i]/float64(steps))
		}
	}
	return hist, nil
}

// EvaluateGenerator evaluates the model on steps batches pulled from the
// generator, averaging scores per step.
func (m *Model) EvaluateGenerator(g Generator, steps int, opts *GeneratorOptions) ([]float64, error) {
	const op = "Model.EvaluateGenerator"
	if !m.compiled {
		return nil, Errorf(KindPrecondition, op, "the model needs to be compiled before being used")
	}
	if steps <= 0 {
		return nil, Errorf(KindValidation, op, "steps must be positive")
	}
	queue, cancel := pumpBatches(g, steps, opts)
	defer cancel()
	sums := make([]float64, len(m.MetricKeys()))
	seen := 0
	for b := range queue {
		if b.err != nil {
			return nil, b.err
		}
		scores, err := m.TestOnBatch(b.x, b.y)
		if err != nil {
			return nil, err
		}
		for i, s := range scores {
			sums[i] += s
		}
		seen++
	}
	for i := range sums {
		sums[i] /= float64(seen)
	}
	return sums, nil
}

// PredictGenerator runs inference on steps batches pulled from the
// generator and concatenates the outputs.
func (m *Model) PredictGenerator(g Generator, steps int, opts *GeneratorOptions) (*tensor.Raw, error) {
	const op = "Model.PredictGenerator"
	if steps <= 0 {
		return nil, Errorf(KindValidation, op, "steps must be positive")
	}
	queue, cancel := pumpBatches(g, steps, opts)
	defer cancel()
	var parts []*tensor.Raw
	for b := range queue {
		if b.err != nil {
			return nil, b.err
		}
		out, err := m.PredictOnBatch(b.x)
		if err != nil {
			return nil, err
		}
		parts = append(parts, out)
	}
	return tensor.ConcatRows(parts)
}
