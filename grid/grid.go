package grid

import (
	"fmt"
	"math"
)

// Map 行优先 float32 网格，index = y*W + x
// 高度值约定范围 [0,1]，深度原始值无固定范围
type Map struct {
	W, H int
	Data []float32
}

// New 创建全零网格
func New(h, w int) Map {
	return Map{W: w, H: h, Data: make([]float32, h*w)}
}

// FromData 用已有数据构建网格，长度必须等于 h*w
func FromData(h, w int, data []float32) (Map, error) {
	if h <= 0 || w <= 0 {
		return Map{}, &ShapeError{H: h, W: w}
	}
	if len(data) != h*w {
		return Map{}, fmt.Errorf("grid data length mismatch: got %d, expected %d", len(data), h*w)
	}
	return Map{W: w, H: h, Data: data}, nil
}

func (m Map) At(x, y int) float32 {
	return m.Data[y*m.W+x]
}

func (m Map) Set(x, y int, v float32) {
	m.Data[y*m.W+x] = v
}

// Clone 深拷贝，各阶段只读输入、新分配输出
func (m Map) Clone() Map {
	out := Map{W: m.W, H: m.H, Data: make([]float32, len(m.Data))}
	copy(out.Data, m.Data)
	return out
}

// MinMax 求极值，空网格返回 (0,0)
func (m Map) MinMax() (float32, float32) {
	if len(m.Data) == 0 {
		return 0, 0
	}
	lo, hi := m.Data[0], m.Data[0]
	for _, v := range m.Data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Finite 检查是否全部为有限值（无 NaN/Inf）
func (m Map) Finite() bool {
	for _, v := range m.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
