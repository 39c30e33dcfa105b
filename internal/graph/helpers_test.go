package graph

import (
	"github.com/lamina-ml/lamina/internal/tensor"
)

// scaleLayer multiplies its input elementwise by a configurable factor. It
// carries no weights, so cloned copies behave identically.
type scaleLayer struct {
	Base
	factor float32
}

func newScaleLayer(factor float32, batchShape tensor.Shape, name string) *scaleLayer {
	l := &scaleLayer{Base: NewBase(name, "scale", tensor.Float32), factor: factor}
	if batchShape != nil {
		l.SetBatchInputShape(batchShape)
	}
	return l
}

func (l *scaleLayer) ClassName() string { return "ScaleLayer" }

func (l *scaleLayer) OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error) {
	return []tensor.Shape{inputShapes[0].Clone()}, nil
}

func (l *scaleLayer) Forward(inputs []*tensor.Raw, args CallArgs) ([]*tensor.Raw, error) {
	out := inputs[0].Clone()
	v := out.AsFloat32()
	for i := range v {
		v[i] *= l.factor
	}
	return []*tensor.Raw{out}, nil
}

func (l *scaleLayer) Backward(inputs, outputGrads []*tensor.Raw, args CallArgs) ([]*tensor.Raw, []*tensor.Raw, error) {
	dx := outputGrads[0].Clone()
	v := dx.AsFloat32()
	for i := range v {
		v[i] *= l.factor
	}
	return []*tensor.Raw{dx}, nil, nil
}

func (l *scaleLayer) Config() map[string]any {
	cfg := map[string]any{"name": l.Name(), "factor": float64(l.factor)}
	if l.BatchInputShape() != nil {
		cfg["batch_input_shape"] = []int(l.BatchInputShape())
	}
	return cfg
}

// biasLayer adds a learned per-feature offset, giving tests a layer with
// trainable state.
type biasLayer struct {
	Base
	offset *Weight
}

func newBiasLayer(batchShape tensor.Shape, name string) *biasLayer {
	l := &biasLayer{Base: NewBase(name, "bias", tensor.Float32)}
	if batchShape != nil {
		l.SetBatchInputShape(batchShape)
	}
	return l
}

func (l *biasLayer) ClassName() string { return "BiasLayer" }

func (l *biasLayer) Build(inputShapes []tensor.Shape) error {
	features := inputShapes[0][len(inputShapes[0])-1]
	value, err := tensor.NewRaw(tensor.Shape{features}, tensor.Float32)
	if err != nil {
		return err
	}
	l.offset = &Weight{Name: l.Name() + "/offset", Value: value, Trainable: true}
	return nil
}

func (l *biasLayer) OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error) {
	return []tensor.Shape{inputShapes[0].Clone()}, nil
}

func (l *biasLayer) Forward(inputs []*tensor.Raw, args CallArgs) ([]*tensor.Raw, error) {
	out := inputs[0].Clone()
	v := out.AsFloat32()
	b := l.offset.Value.AsFloat32()
	n := len(b)
	for i := range v {
		v[i] += b[i%n]
	}
	return []*tensor.Raw{out}, nil
}

func (l *biasLayer) Backward(inputs, outputGrads []*tensor.Raw, args CallArgs) ([]*tensor.Raw, []*tensor.Raw, error) {
	g := outputGrads[0]
	db, err := tensor.NewRaw(l.offset.Value.Shape(), tensor.Float32)
	if err != nil {
		return nil, nil, err
	}
	dbv := db.AsFloat32()
	n := len(dbv)
	for i, e := range g.AsFloat32() {
		dbv[i%n] += e
	}
	return []*tensor.Raw{g.Clone()}, []*tensor.Raw{db}, nil
}

func (l *biasLayer) Weights() []*Weight {
	if l.offset == nil {
		return nil
	}
	return []*Weight{l.offset}
}

func (l *biasLayer) SetWeights(values []*tensor.Raw) error {
	if len(values) != 1 {
		return Errorf(KindShape, "biasLayer.SetWeights", "expected 1 weight array, got %d", len(values))
	}
	if !values[0].Shape().Equal(l.offset.Value.Shape()) {
		return Errorf(KindShape, "biasLayer.SetWeights", "shape mismatch")
	}
	copy(l.offset.Value.Data(), values[0].Data())
	return nil
}

func (l *biasLayer) Config() map[string]any {
	cfg := map[string]any{"name": l.Name()}
	if l.BatchInputShape() != nil {
		cfg["batch_input_shape"] = []int(l.BatchInputShape())
	}
	return cfg
}

// forkLayer returns two copies of its input, for multi-output tests.
type forkLayer struct {
	Base
}

func newForkLayer(name string) *forkLayer {
	return &forkLayer{Base: NewBase(name, "fork", tensor.Float32)}
}

func (l *forkLayer) ClassName() string { return "ForkLayer" }

func (l *forkLayer) OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error) {
	return []tensor.Shape{inputShapes[0].Clone(), inputShapes[0].Clone()}, nil
}

func (l *forkLayer) Forward(inputs []*tensor.Raw, args CallArgs) ([]*tensor.Raw, error) {
	return []*tensor.Raw{inputs[0], inputs[0]}, nil
}

func (l *forkLayer) Config() map[string]any {
	return map[string]any{"name": l.Name()}
}

// sumLayer adds two inputs elementwise, for diamond graph tests.
type sumLayer struct {
	Base
}

func newSumLayer(name string) *sumLayer {
	return &sumLayer{Base: NewBase(name, "sum", tensor.Float32)}
}

func (l *sumLayer) ClassName() string { return "SumLayer" }

func (l *sumLayer) OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error) {
	if len(inputShapes) != 2 {
		return nil, Errorf(KindCardinality, "sumLayer.OutputShapes",
			"expected 2 inputs, got %d", len(inputShapes))
	}
	return []tensor.Shape{inputShapes[0].Clone()}, nil
}

func (l *sumLayer) Forward(inputs []*tensor.Raw, args CallArgs) ([]*tensor.Raw, error) {
	out := inputs[0].Clone()
	v := out.AsFloat32()
	for i, e := range inputs[1].AsFloat32() {
		v[i] += e
	}
	return []*tensor.Raw{out}, nil
}

func (l *sumLayer) Config() map[string]any {
	return map[string]any{"name": l.Name()}
}

func init() {
	RegisterLayer("ScaleLayer", func(cfg map[string]any) (Layer, error) {
		factor, _ := ConfigFloat(cfg, "factor")
		name, _ := ConfigString(cfg, "name")
		var shape tensor.Shape
		if _, ok := cfg["batch_input_shape"]; ok {
			s, err := ConfigIntSlice(cfg, "batch_input_shape")
			if err != nil {
				return nil, err
			}
			shape = s
		}
		return newScaleLayer(float32(factor), shape, name), nil
	})
	RegisterLayer("BiasLayer", func(cfg map[string]any) (Layer, error) {
		name, _ := ConfigString(cfg, "name")
		var shape tensor.Shape
		if _, ok := cfg["batch_input_shape"]; ok {
			s, err := ConfigIntSlice(cfg, "batch_input_shape")
			if err != nil {
				return nil, err
			}
			shape = s
		}
		return newBiasLayer(shape, name), nil
	})
	RegisterLayer("ForkLayer", func(cfg map[string]any) (Layer, error) {
		name, _ := ConfigString(cfg, "name")
		return newForkLayer(name), nil
	})
	RegisterLayer("SumLayer", func(cfg map[string]any) (Layer, error) {
		name, _ := ConfigString(cfg, "name")
		return newSumLayer(name), nil
	})
}

func mustRaw(t interface{ Fatalf(string, ...any) }, values []float32, shape tensor.Shape) *tensor.Raw {
	r, err := tensor.FromFloat32(values, shape)
	if err != nil {
		t.Fatalf("FromFloat32: %v", err)
	}
	return r
}
