package layers

import (
	"github.com/lamina-ml/lamina/internal/graph"
)

func init() {
	graph.RegisterLayer("Dense", denseFromConfig)
	graph.RegisterLayer("Activation", activationFromConfig)
	graph.RegisterLayer("Dropout", dropoutFromConfig)
	graph.RegisterLayer("Flatten", flattenFromConfig)
	graph.RegisterLayer("Add", addFromConfig)
	graph.RegisterLayer("Split", splitFromConfig)
	graph.RegisterLayer("Masking", maskingFromConfig)
}
