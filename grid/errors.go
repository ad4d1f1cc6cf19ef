package grid

import "fmt"

// ShapeError 请求的尺寸非法（非正数）
type ShapeError struct {
	H, W int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("invalid shape %dx%d", e.H, e.W)
}

// ShapeMismatchError 两个应当同尺寸的缓冲不一致
type ShapeMismatchError struct {
	WantH, WantW int
	GotH, GotW   int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch: want %dx%d, got %dx%d", e.WantH, e.WantW, e.GotH, e.GotW)
}

// RangeError 参数超出有效域，如羽化半径为负
type RangeError struct {
	Param string
	Value float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s out of range: %v", e.Param, e.Value)
}

// NumericError 输出中出现非有限值（NaN/Inf）
type NumericError struct {
	Count int
}

func (e *NumericError) Error() string {
	return fmt.Sprintf("non-finite values in grid: %d", e.Count)
}
