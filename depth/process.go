// Package depth 把原始深度估计结果后处理为持久化高度图：
// 双三次重采样 + 极差归一化 + 反转 + 原始 float32 序列化。
package depth

import (
	"math"

	"github.com/chaos-io/topograph/codec"
	"github.com/chaos-io/topograph/grid"
)

// 归一化的退化判据：极差小于该值视为平坦输入
const flatEpsilon = 1e-6

// Process 深度后处理全流程，输出扁平 float32 小端字节流
// （行优先，恒为 targetH*targetW*4 字节，无任何头部）
func Process(raw grid.Map, targetH, targetW int) ([]byte, error) {
	m, err := Heightmap(raw, targetH, targetW)
	if err != nil {
		return nil, err
	}
	return codec.EncodeFloat32(m.Data), nil
}

// Heightmap 重采样 + 归一化 + 反转，输出 [0,1] 高度网格
//
// 深度约定：上游输出值越小越靠近相机；俯视高度图要求越高值越大，
// 因此归一化后固定做 1-v 反转
func Heightmap(raw grid.Map, targetH, targetW int) (grid.Map, error) {
	resampled, err := Resample(raw, targetH, targetW)
	if err != nil {
		return grid.Map{}, err
	}

	// 退化插值可能把输入里的 NaN/Inf 扩散到整张图，先挡下来
	if n := countNonFinite(resampled); n > 0 {
		return grid.Map{}, &grid.NumericError{Count: n}
	}

	normalizeInvert(resampled)
	return resampled, nil
}

// Resample 双三次（Catmull-Rom 卷积核，a=-0.5）重采样到目标尺寸
//
// 采样按像素中心对齐：目标列 x 映射到源坐标 (x+0.5)*srcW/dstW-0.5，
// 不做 align-corners；越界抽头夹到边界行列。
// 输出永远是新分配的网格，不触碰输入
func Resample(src grid.Map, targetH, targetW int) (grid.Map, error) {
	if targetH <= 0 || targetW <= 0 {
		return grid.Map{}, &grid.ShapeError{H: targetH, W: targetW}
	}
	if src.H <= 0 || src.W <= 0 || len(src.Data) != src.H*src.W {
		return grid.Map{}, &grid.ShapeError{H: src.H, W: src.W}
	}

	if src.H == targetH && src.W == targetW {
		return src.Clone(), nil
	}

	// 可分离两趟：先横向到 src.H × targetW，再纵向
	tmp := grid.New(src.H, targetW)
	scaleX := float64(src.W) / float64(targetW)
	for x := 0; x < targetW; x++ {
		sx := (float64(x)+0.5)*scaleX - 0.5
		ix := int(math.Floor(sx))
		fx := sx - float64(ix)
		var w [4]float64
		for k := 0; k < 4; k++ {
			w[k] = cubic(fx - float64(k-1))
		}
		for y := 0; y < src.H; y++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += w[k] * float64(src.At(clampInt(ix+k-1, src.W-1), y))
			}
			tmp.Set(x, y, float32(sum))
		}
	}

	out := grid.New(targetH, targetW)
	scaleY := float64(src.H) / float64(targetH)
	for y := 0; y < targetH; y++ {
		sy := (float64(y)+0.5)*scaleY - 0.5
		iy := int(math.Floor(sy))
		fy := sy - float64(iy)
		var w [4]float64
		for k := 0; k < 4; k++ {
			w[k] = cubic(fy - float64(k-1))
		}
		for x := 0; x < targetW; x++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += w[k] * float64(tmp.At(x, clampInt(iy+k-1, src.H-1)))
			}
			out.Set(x, y, float32(sum))
		}
	}

	return out, nil
}

// normalizeInvert 原地极差归一化到 [0,1] 后做 1-v 反转；
// 极差 ≤ flatEpsilon 的平坦输入归一化为全零（反转后即全 1）
func normalizeInvert(m grid.Map) {
	lo, hi := m.MinMax()
	rng := float64(hi) - float64(lo)
	if rng <= flatEpsilon {
		for i := range m.Data {
			m.Data[i] = 1.0
		}
		return
	}
	for i, v := range m.Data {
		n := (float64(v) - float64(lo)) / rng
		m.Data[i] = float32(1.0 - n)
	}
}

// cubic Catmull-Rom 三次卷积核，a=-0.5，支撑 |t|<2，权重和为 1
func cubic(t float64) float64 {
	t = math.Abs(t)
	if t <= 1 {
		return ((1.5*t-2.5)*t)*t + 1
	}
	if t < 2 {
		return ((-0.5*t+2.5)*t-4)*t + 2
	}
	return 0
}

func countNonFinite(m grid.Map) int {
	n := 0
	for _, v := range m.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			n++
		}
	}
	return n
}

func clampInt(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}
