package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"github.com/chaos-io/topograph/grid"
)

// GrayPNG 高度图转 8-bit 灰度 PNG，拉伸到 0-255 全量程
// （ControlNet 条件图需要最大对比度）
func GrayPNG(m grid.Map) ([]byte, error) {
	lo, hi := m.MinMax()
	rng := float64(hi - lo)
	if rng < 1e-6 {
		rng = 1e-6
	}

	img := image.NewGray(image.Rect(0, 0, m.W, m.H))
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			n := (float64(m.At(x, y)) - float64(lo)) / rng
			img.SetGray(x, y, color.Gray{Y: Quantize(n * 255.0)})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Gray16PNG 高度图转 16-bit 灰度 PNG 导出，值域按 [0,1] 夹取后映射到 65535
func Gray16PNG(m grid.Map) ([]byte, error) {
	img := image.NewGray16(image.Rect(0, 0, m.W, m.H))
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			v := float64(m.At(x, y))
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(v * 65535.0)})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
