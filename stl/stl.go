// Package stl 把高度图导出为 ASCII STL 浮雕模型：
// 顶面按高度起伏，四周封边，底面下沉 baseThickness
package stl

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/chaos-io/topograph/grid"
)

// Generate 高度值按 [0,1] 夹取后乘 modelThickness 作为 Z；
// modelWidth 决定 XY 比例（像素间距 = modelWidth/width）
func Generate(w io.Writer, hm grid.Map, modelWidth, modelThickness, baseThickness float64) error {
	if hm.W < 2 || hm.H < 2 {
		return &grid.ShapeError{H: hm.H, W: hm.W}
	}

	bw := bufio.NewWriter(w)
	pixelSize := modelWidth / float64(hm.W)

	z := func(x, y int) float64 {
		v := float64(hm.At(x, y))
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		return v * modelThickness
	}
	// 图像 y 向下，模型 y 向上
	my := func(y int) float64 { return float64(hm.H-y-1) * pixelSize }
	mx := func(x int) float64 { return float64(x) * pixelSize }

	if _, err := fmt.Fprintln(bw, "solid topograph_relief"); err != nil {
		return err
	}

	// 顶面
	for y := 0; y < hm.H-1; y++ {
		for x := 0; x < hm.W-1; x++ {
			x0, x1 := mx(x), mx(x+1)
			y0, y1 := my(y), my(y+1)
			writeFacet(bw, vec{x0, y0, z(x, y)}, vec{x1, y0, z(x+1, y)}, vec{x0, y1, z(x, y+1)})
			writeFacet(bw, vec{x1, y0, z(x+1, y)}, vec{x1, y1, z(x+1, y+1)}, vec{x0, y1, z(x, y+1)})
		}
	}

	// 底面 (Z = -baseThickness)
	zb := -baseThickness
	for y := 0; y < hm.H-1; y++ {
		for x := 0; x < hm.W-1; x++ {
			x0, x1 := mx(x), mx(x+1)
			y0, y1 := my(y), my(y+1)
			writeFacet(bw, vec{x0, y0, zb}, vec{x1, y1, zb}, vec{x0, y1, zb})
			writeFacet(bw, vec{x0, y0, zb}, vec{x1, y0, zb}, vec{x1, y1, zb})
		}
	}

	// 前后封边
	for x := 0; x < hm.W-1; x++ {
		x0, x1 := mx(x), mx(x+1)

		yf := 0.0
		writeFacet(bw, vec{x0, yf, zb}, vec{x1, yf, zb}, vec{x0, yf, z(x, hm.H-1)})
		writeFacet(bw, vec{x1, yf, zb}, vec{x1, yf, z(x+1, hm.H-1)}, vec{x0, yf, z(x, hm.H-1)})

		yr := float64(hm.H-1) * pixelSize
		writeFacet(bw, vec{x0, yr, zb}, vec{x0, yr, z(x, 0)}, vec{x1, yr, zb})
		writeFacet(bw, vec{x1, yr, zb}, vec{x1, yr, z(x+1, 0)}, vec{x0, yr, z(x, 0)})
	}

	// 左右封边
	for y := 0; y < hm.H-1; y++ {
		y0, y1 := my(y), my(y+1)

		xl := 0.0
		writeFacet(bw, vec{xl, y0, zb}, vec{xl, y0, z(0, y)}, vec{xl, y1, zb})
		writeFacet(bw, vec{xl, y1, zb}, vec{xl, y0, z(0, y)}, vec{xl, y1, z(0, y+1)})

		xr := float64(hm.W-1) * pixelSize
		writeFacet(bw, vec{xr, y0, zb}, vec{xr, y1, zb}, vec{xr, y0, z(hm.W-1, y)})
		writeFacet(bw, vec{xr, y1, zb}, vec{xr, y1, z(hm.W-1, y+1)}, vec{xr, y0, z(hm.W-1, y)})
	}

	if _, err := fmt.Fprintln(bw, "endsolid topograph_relief"); err != nil {
		return err
	}
	return bw.Flush()
}

type vec [3]float64

// writeFacet 写入单个三角面，法向取叉积并归一化
func writeFacet(w io.Writer, v1, v2, v3 vec) {
	a := vec{v2[0] - v1[0], v2[1] - v1[1], v2[2] - v1[2]}
	b := vec{v3[0] - v1[0], v3[1] - v1[1], v3[2] - v1[2]}
	normal := vec{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
	norm := math.Sqrt(normal[0]*normal[0] + normal[1]*normal[1] + normal[2]*normal[2])
	if norm > 0 {
		for i := 0; i < 3; i++ {
			normal[i] /= norm
		}
	}
	_, _ = fmt.Fprintf(w, "  facet normal %f %f %f\n", normal[0], normal[1], normal[2])
	_, _ = fmt.Fprintf(w, "    outer loop\n")
	_, _ = fmt.Fprintf(w, "      vertex %f %f %f\n", v1[0], v1[1], v1[2])
	_, _ = fmt.Fprintf(w, "      vertex %f %f %f\n", v2[0], v2[1], v2[2])
	_, _ = fmt.Fprintf(w, "      vertex %f %f %f\n", v3[0], v3[1], v3[2])
	_, _ = fmt.Fprintf(w, "    endloop\n")
	_, _ = fmt.Fprintf(w, "  endfacet\n")
}
