// Package codec 定义两个无版本、无元数据的二进制契约：
// 原始 float32 深度布局（行优先、小端、无头）和 8-bit RGB 量化。
// 形状信息由调用方带外维护。
package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chaos-io/topograph/grid"
)

// EncodeFloat32 序列化为扁平 float32 小端字节流，长度恒为 len*4
func EncodeFloat32(values []float32) []byte {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeFloat32 按 h*w 读回 float32 小端字节流，长度不符直接报错
func DecodeFloat32(b []byte, h, w int) ([]float32, error) {
	if h <= 0 || w <= 0 {
		return nil, &grid.ShapeError{H: h, W: w}
	}
	expected := h * w * 4
	if len(b) != expected {
		return nil, fmt.Errorf("depth buffer size mismatch: got %d bytes, expected %d", len(b), expected)
	}
	values := make([]float32, h*w)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return values, nil
}

// Quantize 浮点转 8-bit：先夹到 [0,255] 再截断，NaN 落到 0
func Quantize(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
