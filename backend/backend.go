// Package backend 封装外部生成式后端（深度估计、重绘、ControlNet 纹理）。
// 模型内部行为不在本仓库范围内，这里只约定数据边界：
// 输入 PNG 字节与参数，输出一张 RGB 图或一张原始深度网格。
package backend

import (
	"context"

	"github.com/chaos-io/topograph/grid"
)

type Generator interface {
	// EstimateDepth 返回模型原生分辨率的原始深度网格（未归一化、未反转），
	// 后处理由 depth.Process 完成
	EstimateDepth(ctx context.Context, imagePNG []byte) (grid.Map, error)

	// Inpaint 局部重绘，返回未合成的生成图 PNG
	Inpaint(ctx context.Context, imagePNG, maskPNG []byte, prompt string) ([]byte, error)

	// Texture 深度条件纹理生成，返回未合成的生成图 PNG
	Texture(ctx context.Context, req *TextureRequest) ([]byte, error)
}

// TextureRequest ControlNet 纹理生成参数
type TextureRequest struct {
	ImagePNG []byte
	MaskPNG  []byte
	Prompt   string
	Negative string

	// 条件高度图（归一化 [0,1]），会转成全对比度灰度 PNG 送给后端
	Heightmap grid.Map

	Steps           int
	Guidance        float64
	Strength        float64
	ControlNetScale float64
	Seed            int64
}

// status 脚本/服务统一的完成状态行
type status struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}
