package sparsity

import (
	"npusim/src/mapper"
	"npusim/src/model"
)

// SkipMask summarizes the exact-zero structure of one tile's operands. The
// mask only scales estimated cycle and energy cost; it never participates in
// the arithmetic, so correctness is independent of the sparsity model.
type SkipMask struct {
	TotalMacs   int64
	SkippedMacs int64
}

// Ratio is the fraction of multiply-accumulates with at least one exact-zero
// operand.
func (m SkipMask) Ratio() float64 {
	if m.TotalMacs <= 0 {
		return 0
	}
	return float64(m.SkippedMacs) / float64(m.TotalMacs)
}

// Engine scans tile operands at issue time and builds skip masks.
type Engine struct {
	TilesScanned int64
	MacsSkipped  int64
}

// ScanTile counts the skipped MACs for the tile. activations is the active
// half-buffer slice laid out stream-major: element (m, k) of the stream sits
// at m*tile.Rows + k. A MAC is skipped when either its weight or its
// activation operand is exactly zero.
func (e *Engine) ScanTile(tile *mapper.Tile, weights *model.Tensor, activations []int8) SkipMask {
	streamLen := int64(tile.StreamLen)
	rows := tile.Rows
	cols := int64(tile.Cols)

	mask := SkipMask{
		TotalMacs: streamLen * int64(rows) * cols,
	}

	for k := 0; k < rows; k++ {
		var zeroWeights int64
		for n := 0; n < tile.Cols; n++ {
			if weights.At(tile.RowOff+k, tile.ColOff+n) == 0 {
				zeroWeights++
			}
		}

		var zeroActs int64
		for m := 0; m < tile.StreamLen; m++ {
			if activations[m*rows+k] == 0 {
				zeroActs++
			}
		}

		// MACs skipped in plane k: zero activations kill whole output rows,
		// zero weights kill whole stream columns, minus the double-counted
		// intersection.
		mask.SkippedMacs += zeroActs*cols + zeroWeights*streamLen - zeroActs*zeroWeights
	}

	e.TilesScanned++
	e.MacsSkipped += mask.SkippedMacs

	return mask
}
