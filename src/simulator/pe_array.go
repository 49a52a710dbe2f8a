package simulator

import "npusim/src/mapper"

// PEArray models the weight-stationary systolic grid. Each processing element
// holds one resident int8 weight for the duration of a tile pass; activations
// stream through while partial sums move to the downstream neighbor each
// cycle. The simulation advances all occupied elements in lockstep, so the
// accumulation order is a fixed row-major sweep and results are bit-exact
// across runs.
type PEArray struct {
	Rows int
	Cols int

	resident [][]int8
	occRows  int
	occCols  int
}

func NewPEArray(rows, cols int) *PEArray {
	if rows <= 0 {
		rows = 1
	}
	if cols <= 0 {
		cols = 1
	}

	resident := make([][]int8, rows)
	for r := range resident {
		resident[r] = make([]int8, cols)
	}
	return &PEArray{
		Rows:     rows,
		Cols:     cols,
		resident: resident,
	}
}

// FillDrainCycles is the systolic pipeline fill/drain latency of one pass.
func (pe *PEArray) FillDrainCycles() int {
	return pe.Rows + pe.Cols - 1
}

// LoadTile makes the tile's weight sub-block resident. weights is the full
// layer weight matrix in row-major order with the given stride.
func (pe *PEArray) LoadTile(tile *mapper.Tile, weights []int8, stride int) {
	pe.occRows = tile.Rows
	pe.occCols = tile.Cols
	for r := 0; r < tile.Rows; r++ {
		src := (tile.RowOff+r)*stride + tile.ColOff
		copy(pe.resident[r][:tile.Cols], weights[src:src+tile.Cols])
	}
}

// StreamTile pushes the tile's activation slice through the resident weights
// and accumulates partial sums into acc, the layer's int32 accumulator of
// width accStride. activations is stream-major: element (m, k) sits at
// m*tile.Rows + k.
func (pe *PEArray) StreamTile(tile *mapper.Tile, activations []int8, acc []int32, accStride int) {
	for m := 0; m < tile.StreamLen; m++ {
		vec := activations[m*tile.Rows : (m+1)*tile.Rows]
		out := acc[m*accStride+tile.ColOff:]
		// One simulated wavefront: every occupied element multiplies its
		// resident weight and forwards the partial sum down its column.
		for r := 0; r < pe.occRows; r++ {
			a := int32(vec[r])
			if a == 0 {
				// The product is zero either way; the skip only matters to
				// the cost model, never to the sum.
				continue
			}
			row := pe.resident[r]
			for c := 0; c < pe.occCols; c++ {
				out[c] += a * int32(row[c])
			}
		}
	}
}
