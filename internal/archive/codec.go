package archive

import (
	"github.com/lamina-ml/lamina/internal/graph"
)

// Codec reads and writes archives on disk. The built-in binary codec is
// installed by default; swapping it out (or removing it) supports
// environments where the serialization backend is unavailable.
type Codec interface {
	Write(path string, a *Archive) error
	Read(path string) (*Archive, error)
}

var activeCodec Codec = BinaryCodec{}

// SetCodec replaces the active codec. Passing nil disables persistence:
// Save and Load then fail with DependencyKind.
func SetCodec(c Codec) { activeCodec = c }

// ActiveCodec returns the installed codec, or nil.
func ActiveCodec() Codec { return activeCodec }

func requireCodec(op string) (Codec, error) {
	if activeCodec == nil {
		return nil, graph.Errorf(graph.KindDependency, op,
			"saving and loading models requires a serialization codec, but none is installed")
	}
	return activeCodec, nil
}
