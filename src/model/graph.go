package model

// LayerKind enumerates the supported layer operations.
type LayerKind int

const (
	LayerKindInvalid LayerKind = iota
	LayerKindMatmul
	LayerKindConv2d
	LayerKindActivation
	LayerKindPool
)

func (k LayerKind) String() string {
	switch k {
	case LayerKindMatmul:
		return "matmul"
	case LayerKindConv2d:
		return "conv2d"
	case LayerKindActivation:
		return "activation"
	case LayerKindPool:
		return "pool"
	default:
		return "invalid"
	}
}

// LayerKindFromString converts an op-kind string from a model description into
// a LayerKind. The bool return is false for kinds outside the vocabulary.
func LayerKindFromString(value string) (LayerKind, bool) {
	switch value {
	case "matmul":
		return LayerKindMatmul, true
	case "conv2d":
		return LayerKindConv2d, true
	case "activation":
		return LayerKindActivation, true
	case "pool":
		return LayerKindPool, true
	default:
		return LayerKindInvalid, false
	}
}

// HasWeights reports whether layers of this kind carry a weight tensor that
// the mapper must tile onto the array.
func (k LayerKind) HasWeights() bool {
	return k == LayerKindMatmul || k == LayerKindConv2d
}

// ActivationFn is the elementwise function applied to a layer's output.
type ActivationFn int

const (
	ActivationFnNone ActivationFn = iota
	ActivationFnRelu
)

func (f ActivationFn) String() string {
	switch f {
	case ActivationFnRelu:
		return "relu"
	default:
		return "none"
	}
}

func ActivationFnFromString(value string) (ActivationFn, bool) {
	switch value {
	case "", "none", "identity":
		return ActivationFnNone, true
	case "relu":
		return ActivationFnRelu, true
	default:
		return ActivationFnNone, false
	}
}

// Layer is one node of the model graph. Layers live in an arena indexed by
// integer id; Inputs lists producer ids, so the graph carries no ownership
// pointers between nodes.
type Layer struct {
	ID          int
	Kind        LayerKind
	Name        string
	InputShape  Shape
	OutputShape Shape
	Weights     *Tensor
	Scale       float32
	Fn          ActivationFn
	PoolWindow  int
	Inputs      []int
}

// Graph is a validated, immutable DAG of layers. The layer slice index is the
// layer id; adjacency is held as successor index lists.
type Graph struct {
	ID     string
	Layers []*Layer
	succs  [][]int
}

func (g *Graph) NumLayers() int {
	return len(g.Layers)
}

func (g *Graph) Layer(id int) *Layer {
	if id < 0 || id >= len(g.Layers) {
		return nil
	}
	return g.Layers[id]
}

func (g *Graph) Successors(id int) []int {
	if id < 0 || id >= len(g.succs) {
		return nil
	}
	return g.succs[id]
}

// InputShape is the shape the device input buffer must provide.
func (g *Graph) InputShape() Shape {
	if len(g.Layers) == 0 {
		return Shape{}
	}
	return g.Layers[0].InputShape
}

// OutputShape is the shape of the model output, produced by the last layer.
func (g *Graph) OutputShape() Shape {
	if len(g.Layers) == 0 {
		return Shape{}
	}
	return g.Layers[len(g.Layers)-1].OutputShape
}

// WeightBytes sums the weight footprint across all layers.
func (g *Graph) WeightBytes() int64 {
	var total int64
	for _, layer := range g.Layers {
		if layer.Weights != nil {
			total += layer.Weights.Bytes()
		}
	}
	return total
}

func (g *Graph) buildAdjacency() {
	g.succs = make([][]int, len(g.Layers))
	for _, layer := range g.Layers {
		for _, dep := range layer.Inputs {
			if dep >= 0 && dep < len(g.Layers) {
				g.succs[dep] = append(g.succs[dep], layer.ID)
			}
		}
	}
}
