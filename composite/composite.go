package composite

import (
	"image"
	"image/draw"

	"github.com/chaos-io/topograph/codec"
	"github.com/chaos-io/topograph/grid"
)

// Composite 按 alpha 图逐像素混合：result = original*(1-alpha) + generated*alpha
//
// 三者尺寸必须一致，进行任何像素计算前先整体校验，避免产出半成品；
// 混合在线性像素空间按浮点计算，再夹到 [0,255] 截断为 8-bit。
// alpha=0 逐字节还原 original，alpha=1 还原 generated（量化精度内）
func Composite(original, generated image.Image, alpha grid.Map) (*image.NRGBA, error) {
	ob, gb := original.Bounds(), generated.Bounds()
	if ob.Dx() != gb.Dx() || ob.Dy() != gb.Dy() {
		return nil, &grid.ShapeMismatchError{WantH: ob.Dy(), WantW: ob.Dx(), GotH: gb.Dy(), GotW: gb.Dx()}
	}
	if ob.Dx() != alpha.W || ob.Dy() != alpha.H {
		return nil, &grid.ShapeMismatchError{WantH: ob.Dy(), WantW: ob.Dx(), GotH: alpha.H, GotW: alpha.W}
	}

	src := toNRGBA(original)
	gen := toNRGBA(generated)

	out := image.NewNRGBA(image.Rect(0, 0, alpha.W, alpha.H))
	for y := 0; y < alpha.H; y++ {
		for x := 0; x < alpha.W; x++ {
			a := float64(alpha.At(x, y))
			si := src.PixOffset(src.Rect.Min.X+x, src.Rect.Min.Y+y)
			gi := gen.PixOffset(gen.Rect.Min.X+x, gen.Rect.Min.Y+y)
			oi := out.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := float64(src.Pix[si+c])*(1-a) + float64(gen.Pix[gi+c])*a
				out.Pix[oi+c] = codec.Quantize(v)
			}
			out.Pix[oi+3] = 0xff
		}
	}
	return out, nil
}

// toNRGBA 统一转成 NRGBA 便于逐像素处理
func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}
