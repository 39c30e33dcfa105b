package graph

import (
	"sync"
)

// LayerFactory reconstructs a layer from its config map.
type LayerFactory func(config map[string]any) (Layer, error)

// CustomObjects maps class names to caller-supplied factories, merged over
// the built-in registry at deserialization time. Values may be
// LayerFactory, Loss, or Metric depending on the slot being resolved.
type CustomObjects map[string]any

var registry = struct {
	mu     sync.RWMutex
	layers map[string]LayerFactory
}{
	layers: make(map[string]LayerFactory),
}

// RegisterLayer installs a factory for a layer class name. Layer packages
// call this from init.
func RegisterLayer(className string, f LayerFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.layers[className] = f
}

// DeserializeLayer resolves a class name against the registry merged with
// custom objects and invokes the factory. Unknown tags fail with
// ValidationKind, never a silent default.
func DeserializeLayer(className string, config map[string]any, custom CustomObjects) (Layer, error) {
	if v, ok := custom[className]; ok {
		if f, ok := v.(LayerFactory); ok {
			return f(config)
		}
		if f, ok := v.(func(map[string]any) (Layer, error)); ok {
			return f(config)
		}
		return nil, Errorf(KindValidation, "graph.DeserializeLayer",
			"custom object %q is not a layer factory", className)
	}
	registry.mu.RLock()
	f, ok := registry.layers[className]
	registry.mu.RUnlock()
	if !ok {
		return nil, Errorf(KindValidation, "graph.DeserializeLayer",
			"unknown layer class %q", className)
	}
	return f(config)
}

func init() {
	RegisterLayer("InputLayer", func(config map[string]any) (Layer, error) {
		shape, err := ConfigIntSlice(config, "batch_input_shape")
		if err != nil {
			return nil, err
		}
		dtype := ConfigDType(config, "dtype")
		sparse, _ := ConfigBool(config, "sparse")
		name, _ := ConfigString(config, "name")
		return NewInputLayer(shape, dtype, sparse, name)
	})
	RegisterLayer("Sequential", func(config map[string]any) (Layer, error) {
		return sequentialFromConfigMap(config, nil)
	})
	RegisterLayer("Model", func(config map[string]any) (Layer, error) {
		mc, err := modelConfigFromValue(config)
		if err != nil {
			return nil, err
		}
		return FunctionalFromConfig(mc, nil)
	})
}
