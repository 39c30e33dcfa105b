package graph

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Handle is a stable integer identity assigned to every layer and every
// symbolic tensor at creation. Clone caches and the tensor-origin table are
// keyed by handles so that identity never depends on pointer comparison of
// mutable objects.
type Handle uint64

var handleCounter atomic.Uint64

func nextHandle() Handle {
	return Handle(handleCounter.Add(1))
}

// Origin records where a symbolic tensor came from: the layer that produced
// it, the index of the producing node among that layer's inbound nodes, and
// the index of the tensor among that node's outputs. It is a weak
// back-reference used for graph introspection, never for ownership.
type Origin struct {
	Layer       Layer
	NodeIndex   int
	TensorIndex int
}

// uidState holds the process-wide naming counters and the tensor-origin
// table. Access is serialized; graph construction itself is single-threaded
// per model, but independent models may be built concurrently.
type uidState struct {
	mu      sync.Mutex
	uids    map[string]int
	origins map[Handle]Origin
	masks   map[Handle]*Tensor
}

var state = &uidState{
	uids:    make(map[string]int),
	origins: make(map[Handle]Origin),
	masks:   make(map[Handle]*Tensor),
}

// NewUID returns the next unique name for a prefix, e.g. "dense_1",
// "dense_2". Mirrors the auto-naming of layers and models.
func NewUID(prefix string) string {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.uids[prefix]++
	return fmt.Sprintf("%s%d", prefix, state.uids[prefix])
}

// ResetState clears the naming counters and the origin table. Intended for
// tests that need deterministic layer names.
func ResetState() {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.uids = make(map[string]int)
	state.origins = make(map[Handle]Origin)
	state.masks = make(map[Handle]*Tensor)
}

func recordOrigin(t *Tensor, layer Layer, nodeIndex, tensorIndex int) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.origins[t.handle] = Origin{Layer: layer, NodeIndex: nodeIndex, TensorIndex: tensorIndex}
}

func recordMask(t, mask *Tensor) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.masks[t.handle] = mask
}

// MaskOf looks up the mask attached to a symbolic tensor, recorded when the
// producing layer's ComputeMask returned one. The second return value is
// false for unmasked tensors.
func MaskOf(t *Tensor) (*Tensor, bool) {
	state.mu.Lock()
	defer state.mu.Unlock()
	m, ok := state.masks[t.handle]
	return m, ok
}

// OriginOf looks up the producing layer of a symbolic tensor. The second
// return value is false for tensors that were never produced by a layer
// call (externally constructed placeholders).
func OriginOf(t *Tensor) (Origin, bool) {
	state.mu.Lock()
	defer state.mu.Unlock()
	o, ok := state.origins[t.handle]
	return o, ok
}
