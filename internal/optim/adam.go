package optim

import (
	"math"

	"github.com/lamina-ml/lamina/internal/graph"
	"github.com/lamina-ml/lamina/internal/tensor"
)

// Adam implements the Adam optimizer (Kingma & Ba, 2014) with bias
// correction.
type Adam struct {
	lr      float64
	beta1   float64
	beta2   float64
	epsilon float64

	step     int
	firstMom []*tensor.Raw
	secndMom []*tensor.Raw
}

// NewAdam creates an Adam optimizer with the usual defaults for zero-valued
// hyperparameters.
func NewAdam(lr, beta1, beta2, epsilon float64) *Adam {
	if lr == 0 {
		lr = 0.001
	}
	if beta1 == 0 {
		beta1 = 0.9
	}
	if beta2 == 0 {
		beta2 = 0.999
	}
	if epsilon == 0 {
		epsilon = 1e-8
	}
	return &Adam{lr: lr, beta1: beta1, beta2: beta2, epsilon: epsilon}
}

// Name implements graph.Optimizer.
func (a *Adam) Name() string { return "Adam" }

// Config implements graph.Optimizer.
func (a *Adam) Config() map[string]any {
	return map[string]any{
		"lr":      a.lr,
		"beta_1":  a.beta1,
		"beta_2":  a.beta2,
		"epsilon": a.epsilon,
	}
}

// Build allocates the first and second moment slots.
func (a *Adam) Build(params []*graph.Weight) error {
	a.step = 0
	a.firstMom = make([]*tensor.Raw, len(params))
	a.secndMom = make([]*tensor.Raw, len(params))
	for i, p := range params {
		m, err := tensor.NewRaw(p.Value.Shape(), p.Value.DType())
		if err != nil {
			return err
		}
		v, err := tensor.NewRaw(p.Value.Shape(), p.Value.DType())
		if err != nil {
			return err
		}
		a.firstMom[i] = m
		a.secndMom[i] = v
	}
	return nil
}

// Step applies one bias-corrected Adam update.
func (a *Adam) Step(params []*graph.Weight, grads []*tensor.Raw) error {
	const op = "Adam.Step"
	if len(params) != len(grads) {
		return graph.Errorf(graph.KindCardinality, op,
			"got %d gradients for %d parameters", len(grads), len(params))
	}
	if len(a.firstMom) != len(params) {
		return graph.Errorf(graph.KindPrecondition, op, "optimizer state not built")
	}
	a.step++
	c1 := 1.0 - math.Pow(a.beta1, float64(a.step))
	c2 := 1.0 - math.Pow(a.beta2, float64(a.step))
	for i, p := range params {
		w := p.Value.AsFloat32()
		g := grads[i].AsFloat32()
		m := a.firstMom[i].AsFloat32()
		v := a.secndMom[i].AsFloat32()
		if len(g) != len(w) {
			return graph.Errorf(graph.KindShape, op,
				"gradient %d has %d elements, parameter %q has %d", i, len(g), p.Name, len(w))
		}
		for j := range w {
			gj := float64(g[j])
			mj := a.beta1*float64(m[j]) + (1.0-a.beta1)*gj
			vj := a.beta2*float64(v[j]) + (1.0-a.beta2)*gj*gj
			m[j] = float32(mj)
			v[j] = float32(vj)
			w[j] -= float32(a.lr * (mj / c1) / (math.Sqrt(vj/c2) + a.epsilon))
		}
	}
	return nil
}

// Weights returns the step counter followed by the moment tensors.
func (a *Adam) Weights() []*tensor.Raw {
	stepT, err := tensor.FromFloat32([]float32{float32(a.step)}, tensor.Shape{1})
	if err != nil {
		return nil
	}
	out := []*tensor.Raw{stepT}
	out = append(out, a.firstMom...)
	out = append(out, a.secndMom...)
	return out
}

// SetWeights restores the step counter and moment tensors.
func (a *Adam) SetWeights(values []*tensor.Raw) error {
	const op = "Adam.SetWeights"
	want := 1 + len(a.firstMom) + len(a.secndMom)
	if len(values) != want {
		return graph.Errorf(graph.KindShape, op,
			"expected %d state tensors, got %d", want, len(values))
	}
	a.step = int(values[0].AsFloat32()[0])
	rest := values[1:]
	for i := range a.firstMom {
		if !rest[i].Shape().Equal(a.firstMom[i].Shape()) {
			return graph.Errorf(graph.KindShape, op,
				"state tensor %d has shape %s, expected %s", i+1, rest[i].Shape(), a.firstMom[i].Shape())
		}
		copy(a.firstMom[i].Data(), rest[i].Data())
	}
	rest = rest[len(a.firstMom):]
	for i := range a.secndMom {
		if !rest[i].Shape().Equal(a.secndMom[i].Shape()) {
			return graph.Errorf(graph.KindShape, op,
				"state tensor %d has shape %s, expected %s",
				1+len(a.firstMom)+i, rest[i].Shape(), a.secndMom[i].Shape())
		}
		copy(a.secndMom[i].Data(), rest[i].Data())
	}
	return nil
}

func adamFromConfig(cfg map[string]any) (graph.Optimizer, error) {
	lr, _ := graph.ConfigFloat(cfg, "lr")
	beta1, _ := graph.ConfigFloat(cfg, "beta_1")
	beta2, _ := graph.ConfigFloat(cfg, "beta_2")
	epsilon, _ := graph.ConfigFloat(cfg, "epsilon")
	return NewAdam(lr, beta1, beta2, epsilon), nil
}
