package model

import "fmt"

// TensorLocation tells where the backing bytes of a tensor currently live.
type TensorLocation int

const (
	TensorLocationFlash TensorLocation = iota
	TensorLocationHost
	TensorLocationDevice
)

func (l TensorLocation) String() string {
	switch l {
	case TensorLocationFlash:
		return "flash"
	case TensorLocationHost:
		return "host"
	case TensorLocationDevice:
		return "device"
	default:
		return "unknown"
	}
}

// Shape is a two-dimensional tensor extent. All tensors in the pipeline are
// 2-D: higher-rank operands are lowered to matrices before they reach the
// mapper.
type Shape struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

func (s Shape) Elems() int {
	return s.Rows * s.Cols
}

func (s Shape) Equal(o Shape) bool {
	return s.Rows == o.Rows && s.Cols == o.Cols
}

func (s Shape) String() string {
	return fmt.Sprintf("[%d x %d]", s.Rows, s.Cols)
}

// Tensor holds quantized int8 values in row-major order together with the
// quantization scale used to interpret them.
type Tensor struct {
	Rows     int
	Cols     int
	Data     []int8
	Scale    float32
	Location TensorLocation
}

func NewTensor(rows, cols int, scale float32) *Tensor {
	if rows < 0 {
		rows = 0
	}
	if cols < 0 {
		cols = 0
	}
	return &Tensor{
		Rows:  rows,
		Cols:  cols,
		Data:  make([]int8, rows*cols),
		Scale: scale,
	}
}

func (t *Tensor) Shape() Shape {
	return Shape{Rows: t.Rows, Cols: t.Cols}
}

// Bytes reports the storage footprint; one byte per int8 element.
func (t *Tensor) Bytes() int64 {
	return int64(t.Rows) * int64(t.Cols)
}

func (t *Tensor) At(row, col int) int8 {
	return t.Data[row*t.Cols+col]
}

func (t *Tensor) Set(row, col int, value int8) {
	t.Data[row*t.Cols+col] = value
}

// Clone returns a deep copy. The mapper hands read-only views to the
// scheduler, so copies are only taken at ownership boundaries.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}
	clone := &Tensor{
		Rows:     t.Rows,
		Cols:     t.Cols,
		Data:     append([]int8(nil), t.Data...),
		Scale:    t.Scale,
		Location: t.Location,
	}
	return clone
}
