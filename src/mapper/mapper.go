package mapper

import (
	"fmt"

	"npusim/src/model"
)

// ArrayParams carries the static hardware parameters the mapper needs. They
// are configuration inputs, never hard-coded by the mapping algorithm.
type ArrayParams struct {
	Rows                int
	Cols                int
	RegisterBits        int
	CacheBanks          int
	CacheBankBytes      int64
	ActivationHalfBytes int64
	CacheFillBandwidth  int64
}

// FillCycles is the weight-cache fill cost in cycles for the given bytes.
func (p ArrayParams) FillCycles(bytes int64) int {
	bandwidth := p.CacheFillBandwidth
	if bandwidth <= 0 {
		bandwidth = 1
	}
	cycles := (bytes + bandwidth - 1) / bandwidth
	if cycles < 1 {
		cycles = 1
	}
	return int(cycles)
}

// Mapper lowers a validated model graph onto the array, producing a Schedule.
// Mapping is single-threaded and runs once per compiled model; results are
// cached by model identifier.
type Mapper struct {
	params ArrayParams
	cache  *ScheduleCache
}

func (this *Mapper) Init(params ArrayParams, cacheEntries int) {
	this.params = params
	this.cache = NewScheduleCache(cacheEntries)
}

func (this *Mapper) Params() ArrayParams {
	return this.params
}

// Map compiles the graph into a Schedule, reusing a cached schedule when the
// same model identifier was compiled before. The emitted tile order is
// row-major over (row block, column block): one tile's weights stay resident
// while its whole activation stream passes, then the mapper advances, which
// minimizes weight-cache reloads without reordering across layer boundaries.
func (this *Mapper) Map(graph *model.Graph) (*Schedule, error) {
	if cached, ok := this.cache.Get(graph.ID); ok {
		return cached, nil
	}

	if this.params.RegisterBits < 8 {
		return nil, &CapacityError{
			Layer:  -1,
			Reason: fmt.Sprintf("int8 weight does not fit a %d-bit PE register", this.params.RegisterBits),
		}
	}

	schedule := &Schedule{
		ModelID:    graph.ID,
		Tiles:      make([]*Tile, 0),
		Directives: make([]*Directive, 0),
	}

	for _, layer := range graph.Layers {
		if layer.Kind.HasWeights() {
			if err := this.mapWeightedLayer(schedule, layer); err != nil {
				return nil, err
			}
		} else {
			this.mapElementwiseLayer(schedule, layer)
		}
	}

	for _, directive := range schedule.Directives {
		schedule.TotalEstCycles += int64(directive.EstCycles)
	}

	this.cache.Put(graph.ID, schedule)

	return schedule, nil
}

// mapWeightedLayer decomposes the layer's K x N weight matrix into
// ceil(K/R) x ceil(N/C) tiles and emits the directive stream. The activation
// DMA for tile i+1 is issued at the point tile i's compute begins, so the
// shadow half fills while the array is busy.
func (this *Mapper) mapWeightedLayer(schedule *Schedule, layer *model.Layer) error {
	weights := layer.Weights
	k := weights.Rows
	n := weights.Cols
	streamLen := layer.InputShape.Rows

	rowBlocks := (k + this.params.Rows - 1) / this.params.Rows
	colBlocks := (n + this.params.Cols - 1) / this.params.Cols

	tiles := make([]*Tile, 0, rowBlocks*colBlocks)
	for rb := 0; rb < rowBlocks; rb++ {
		for cb := 0; cb < colBlocks; cb++ {
			tile, err := this.buildTile(layer, rb, cb, len(tiles), streamLen)
			if err != nil {
				return err
			}
			tiles = append(tiles, tile)
		}
	}

	schedule.Tiles = append(schedule.Tiles, tiles...)

	// Prologue: stage the first tile before any compute can begin.
	schedule.Directives = append(schedule.Directives,
		&Directive{Kind: DirectiveWeightLoad, LayerID: layer.ID, Tile: tiles[0],
			EstCycles: this.params.FillCycles(tiles[0].WeightBytes)},
		&Directive{Kind: DirectiveActivationDMA, LayerID: layer.ID, Tile: tiles[0]},
		&Directive{Kind: DirectiveBufferSwap, LayerID: layer.ID, Tile: tiles[0]},
	)

	for i, tile := range tiles {
		if i+1 < len(tiles) {
			next := tiles[i+1]
			schedule.Directives = append(schedule.Directives,
				&Directive{Kind: DirectiveActivationDMA, LayerID: layer.ID, Tile: next})
		}
		schedule.Directives = append(schedule.Directives,
			&Directive{Kind: DirectiveCompute, LayerID: layer.ID, Tile: tile, EstCycles: tile.EstCycles})
		if i+1 < len(tiles) {
			next := tiles[i+1]
			schedule.Directives = append(schedule.Directives,
				&Directive{Kind: DirectiveBufferSwap, LayerID: layer.ID, Tile: next},
				&Directive{Kind: DirectiveWeightLoad, LayerID: layer.ID, Tile: next,
					EstCycles: this.params.FillCycles(next.WeightBytes)},
			)
		}
	}

	return nil
}

func (this *Mapper) buildTile(layer *model.Layer, rb, cb, index, streamLen int) (*Tile, error) {
	weights := layer.Weights

	rowOff := rb * this.params.Rows
	colOff := cb * this.params.Cols
	rows := this.params.Rows
	if rowOff+rows > weights.Rows {
		rows = weights.Rows - rowOff
	}
	cols := this.params.Cols
	if colOff+cols > weights.Cols {
		cols = weights.Cols - colOff
	}

	weightBytes := int64(rows) * int64(cols)
	activationBytes := int64(streamLen) * int64(rows)

	if weightBytes > this.params.CacheBankBytes {
		return nil, &CapacityError{
			Layer:  layer.ID,
			Reason: fmt.Sprintf("tile of %d weight bytes exceeds bank capacity %d", weightBytes, this.params.CacheBankBytes),
		}
	}
	if activationBytes > this.params.ActivationHalfBytes {
		return nil, &CapacityError{
			Layer: layer.ID,
			Reason: fmt.Sprintf("activation slice of %d bytes exceeds half-buffer capacity %d",
				activationBytes, this.params.ActivationHalfBytes),
		}
	}

	loadCycles := this.params.FillCycles(weightBytes)
	streamCycles := streamLen
	est := loadCycles
	if streamCycles > est {
		est = streamCycles
	}
	est += this.params.Rows + this.params.Cols - 1

	tile := &Tile{
		LayerID:          layer.ID,
		Index:            index,
		RowBlock:         rb,
		ColBlock:         cb,
		RowOff:           rowOff,
		ColOff:           colOff,
		Rows:             rows,
		Cols:             cols,
		WeightOffset:     int64(rowOff)*int64(weights.Cols) + int64(colOff),
		ActivationOffset: int64(rowOff),
		WeightBytes:      weightBytes,
		ActivationBytes:  activationBytes,
		StreamLen:        streamLen,
		EstCycles:        est,
	}
	return tile, nil
}

func (this *Mapper) mapElementwiseLayer(schedule *Schedule, layer *model.Layer) {
	elems := layer.OutputShape.Elems()
	cols := this.params.Cols
	if cols <= 0 {
		cols = 1
	}
	cycles := (elems + cols - 1) / cols
	if cycles < 1 {
		cycles = 1
	}

	schedule.Directives = append(schedule.Directives, &Directive{
		Kind:      DirectiveElementwise,
		LayerID:   layer.ID,
		EstCycles: cycles,
	})
}
