// Package composite 负责遮罩羽化与 alpha 合成：
// 把二值遮罩高斯模糊成平滑 alpha 图，再按凸组合混合原图与生成图。
package composite

import (
	"image"
	"math"

	"github.com/chaos-io/topograph/grid"
)

// Feather 遮罩羽化：radius 为像素数，sigma 取 radius（Pillow 口径），
// 卷积核截断在 3σ，可分离且 X/Y 对称，始终在遮罩原始分辨率上计算
//
// radius=0 时不模糊，仅做 8-bit → [0,1] 转换（除以 255）；
// radius<0 返回 RangeError
func Feather(mask *image.Gray, radius int) (grid.Map, error) {
	if radius < 0 {
		return grid.Map{}, &grid.RangeError{Param: "feather radius", Value: float64(radius)}
	}

	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return grid.Map{}, &grid.ShapeError{H: h, W: w}
	}

	alpha := grid.New(h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			alpha.Data[y*w+x] = float32(mask.GrayAt(b.Min.X+x, b.Min.Y+y).Y) / 255.0
		}
	}
	if radius == 0 {
		return alpha, nil
	}

	kernel := gaussKernel(radius)
	blurSeparable(alpha, kernel)
	return alpha, nil
}

// gaussKernel 一维高斯核，sigma=radius，半宽 3σ，权重归一化到和为 1
func gaussKernel(radius int) []float64 {
	sigma := float64(radius)
	half := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*half+1)
	sum := 0.0
	for i := range kernel {
		t := float64(i - half)
		kernel[i] = math.Exp(-t * t / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// blurSeparable 原地两趟可分离模糊；边界抽头按界内权重重新归一，
// 保证输出仍是输入的凸组合（值域不会越出 [0,1]）
func blurSeparable(m grid.Map, kernel []float64) {
	half := len(kernel) / 2
	tmp := make([]float32, len(m.Data))

	// 横向
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			var sum, weight float64
			for k, kw := range kernel {
				nx := x + k - half
				if nx < 0 || nx >= m.W {
					continue
				}
				sum += kw * float64(m.Data[y*m.W+nx])
				weight += kw
			}
			tmp[y*m.W+x] = float32(sum / weight)
		}
	}

	// 纵向
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			var sum, weight float64
			for k, kw := range kernel {
				ny := y + k - half
				if ny < 0 || ny >= m.H {
					continue
				}
				sum += kw * float64(tmp[ny*m.W+x])
				weight += kw
			}
			m.Data[y*m.W+x] = float32(sum / weight)
		}
	}
}
