package api

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"

	"github.com/chaos-io/topograph/backend"
	"github.com/chaos-io/topograph/codec"
	"github.com/chaos-io/topograph/composite"
	"github.com/chaos-io/topograph/depth"
	"github.com/chaos-io/topograph/grid"
	"github.com/chaos-io/topograph/project"
	"github.com/chaos-io/topograph/stl"
	"github.com/chaos-io/topograph/util"
)

// 输入图片兜底上限，防止超大图拖垮流水线
const maxInputSize = 2048

const defaultFeatherRadius = 12

// handleDepth 深度估计 → 后处理 → 原始 f32 高度图落盘
func (s *Server) handleDepth(c *gin.Context) {
	imgData, err := s.formFile(c, "image")
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	width := s.formInt(c, "width", s.cfg.PipelineSize)
	height := s.formInt(c, "height", s.cfg.PipelineSize)

	img, err := util.DecodeImage(imgData)
	if err != nil {
		s.fail(c, http.StatusBadRequest, fmt.Errorf("decode image: %w", err))
		return
	}
	imgPNG, err := util.EncodePNG(util.ResizeWithinMax(img, maxInputSize))
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}

	raw, err := s.gen.EstimateDepth(c.Request.Context(), imgPNG)
	if err != nil {
		s.fail(c, http.StatusBadGateway, err)
		return
	}

	artifact, err := depth.Process(raw, height, width)
	if err != nil {
		s.failPipeline(c, err)
		return
	}

	output, err := s.writeArtifact("heightmap", ".bin", artifact)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "output": output, "width": width, "height": height})
}

// handleInpaint 局部重绘 → 羽化合成 → PNG 落盘
func (s *Server) handleInpaint(c *gin.Context) {
	in, err := s.loadPaintInputs(c)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	genPNG, err := s.gen.Inpaint(c.Request.Context(), in.imagePNG, in.maskPNG, in.prompt)
	if err != nil {
		s.fail(c, http.StatusBadGateway, err)
		return
	}

	s.composeAndRespond(c, in, genPNG, "inpaint")
}

// handleTexture 深度条件纹理生成 → 羽化合成 → PNG 落盘
// 没有上传高度图时先走一次深度估计得到条件高度图
func (s *Server) handleTexture(c *gin.Context) {
	in, err := s.loadPaintInputs(c)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	hm, err := s.conditioningHeightmap(c, in)
	if err != nil {
		return // conditioningHeightmap 已响应
	}

	genPNG, err := s.gen.Texture(c.Request.Context(), &backend.TextureRequest{
		ImagePNG:        in.imagePNG,
		MaskPNG:         in.maskPNG,
		Prompt:          in.prompt,
		Negative:        c.PostForm("negative"),
		Heightmap:       hm,
		Steps:           s.formInt(c, "steps", 30),
		Guidance:        s.formFloat(c, "guidance", 7.5),
		Strength:        s.formFloat(c, "strength", 0.65),
		ControlNetScale: s.formFloat(c, "controlnet_scale", 1.2),
		Seed:            int64(s.formInt(c, "seed", -1)),
	})
	if err != nil {
		s.fail(c, http.StatusBadGateway, err)
		return
	}

	s.composeAndRespond(c, in, genPNG, "texture")
}

// handleExport 高度图导出：raw / png16 / stl
func (s *Server) handleExport(c *gin.Context) {
	hm, err := s.formHeightmap(c)
	if err != nil {
		s.failPipeline(c, err)
		return
	}

	switch format := c.DefaultPostForm("format", "png16"); format {
	case "raw":
		c.Data(http.StatusOK, "application/octet-stream", codec.EncodeFloat32(hm.Data))
	case "png16":
		data, err := codec.Gray16PNG(hm)
		if err != nil {
			s.fail(c, http.StatusInternalServerError, err)
			return
		}
		c.Data(http.StatusOK, "image/png", data)
	case "stl":
		var buf bytes.Buffer
		err := stl.Generate(&buf, hm,
			s.formFloat(c, "model_width", 50),
			s.formFloat(c, "model_thickness", 5),
			s.formFloat(c, "base_thickness", 2),
		)
		if err != nil {
			s.failPipeline(c, err)
			return
		}
		c.Data(http.StatusOK, "model/stl", buf.Bytes())
	default:
		s.fail(c, http.StatusBadRequest, fmt.Errorf("unknown export format: %s", format))
	}
}

// handleProjectPack 打包 .topo 工程档案
func (s *Server) handleProjectPack(c *gin.Context) {
	hm, err := s.formHeightmap(c)
	if err != nil {
		s.failPipeline(c, err)
		return
	}

	p := &project.Project{
		Heightmap: hm,
		Settings:  c.PostForm("settings"),
	}
	if texture, err := s.formFile(c, "texture"); err == nil {
		p.TexturePNG = texture
	}

	var buf bytes.Buffer
	if err := project.Save(&buf, version, p); err != nil {
		s.failPipeline(c, err)
		return
	}
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

// handleProjectUnpack 解包 .topo，高度图按原始 f32 布局 base64 回传
func (s *Server) handleProjectUnpack(c *gin.Context) {
	data, err := s.formFile(c, "project")
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	p, manifest, err := project.Load(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	resp := gin.H{
		"success":   true,
		"manifest":  manifest,
		"heightmap": base64.StdEncoding.EncodeToString(codec.EncodeFloat32(p.Heightmap.Data)),
		"settings":  p.Settings,
	}
	if len(p.TexturePNG) > 0 {
		resp["texture"] = base64.StdEncoding.EncodeToString(p.TexturePNG)
	}
	c.JSON(http.StatusOK, resp)
}

// paintInputs 重绘/纹理共用的输入：统一缩放到流水线分辨率
type paintInputs struct {
	img      image.Image
	mask     *image.Gray
	imagePNG []byte
	maskPNG  []byte
	prompt   string
	radius   int
}

func (s *Server) loadPaintInputs(c *gin.Context) (*paintInputs, error) {
	imgData, err := s.formFile(c, "image")
	if err != nil {
		return nil, err
	}
	maskData, err := s.formFile(c, "mask")
	if err != nil {
		return nil, err
	}
	prompt := c.PostForm("prompt")
	if prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	img, err := util.DecodeImage(imgData)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	maskImg, err := util.DecodeImage(maskData)
	if err != nil {
		return nil, fmt.Errorf("decode mask: %w", err)
	}

	size := s.cfg.PipelineSize
	resized := util.ResizeTo(img, size, size)
	mask := util.ToGray(util.ResizeTo(maskImg, size, size))

	imagePNG, err := util.EncodePNG(resized)
	if err != nil {
		return nil, err
	}
	maskPNG, err := util.EncodePNG(mask)
	if err != nil {
		return nil, err
	}

	return &paintInputs{
		img:      resized,
		mask:     mask,
		imagePNG: imagePNG,
		maskPNG:  maskPNG,
		prompt:   prompt,
		radius:   s.formInt(c, "feather", defaultFeatherRadius),
	}, nil
}

// conditioningHeightmap 上传的 heightmap.bin 优先，否则现跑一次深度估计
func (s *Server) conditioningHeightmap(c *gin.Context, in *paintInputs) (grid.Map, error) {
	if _, err := c.FormFile("heightmap"); err == nil {
		hm, err := s.formHeightmap(c)
		if err != nil {
			s.failPipeline(c, err)
			return grid.Map{}, err
		}
		return hm, nil
	}

	raw, err := s.gen.EstimateDepth(c.Request.Context(), in.imagePNG)
	if err != nil {
		s.fail(c, http.StatusBadGateway, err)
		return grid.Map{}, err
	}
	hm, err := depth.Heightmap(raw, s.cfg.PipelineSize, s.cfg.PipelineSize)
	if err != nil {
		s.failPipeline(c, err)
		return grid.Map{}, err
	}
	return hm, nil
}

// composeAndRespond 羽化 + 合成 + 落盘 + 状态响应
func (s *Server) composeAndRespond(c *gin.Context, in *paintInputs, genPNG []byte, kind string) {
	genImg, err := util.DecodeImage(genPNG)
	if err != nil {
		s.fail(c, http.StatusBadGateway, fmt.Errorf("decode generated image: %w", err))
		return
	}
	genImg = util.ResizeTo(genImg, s.cfg.PipelineSize, s.cfg.PipelineSize)

	alpha, err := composite.Feather(in.mask, in.radius)
	if err != nil {
		s.failPipeline(c, err)
		return
	}
	result, err := composite.Composite(in.img, genImg, alpha)
	if err != nil {
		s.failPipeline(c, err)
		return
	}

	resultPNG, err := util.EncodePNG(result)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	output, err := s.writeArtifact(kind, ".png", resultPNG)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "output": output})
}

// formHeightmap 解析上传的原始 f32 高度图与申报尺寸
func (s *Server) formHeightmap(c *gin.Context) (grid.Map, error) {
	data, err := s.formFile(c, "heightmap")
	if err != nil {
		return grid.Map{}, err
	}
	width := s.formInt(c, "hm_width", 0)
	height := s.formInt(c, "hm_height", 0)

	values, err := codec.DecodeFloat32(data, height, width)
	if err != nil {
		return grid.Map{}, err
	}
	return grid.FromData(height, width, values)
}

func (s *Server) formFile(c *gin.Context, name string) ([]byte, error) {
	fh, err := c.FormFile(name)
	if err != nil {
		return nil, fmt.Errorf("missing form file %q", name)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open form file %q: %w", name, err)
	}
	defer func() {
		_ = f.Close()
	}()
	return io.ReadAll(f)
}

func (s *Server) formInt(c *gin.Context, name string, fallback int) int {
	if v := c.PostForm(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (s *Server) formFloat(c *gin.Context, name string, fallback float64) float64 {
	if v := c.PostForm(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// writeArtifact 产物落盘，ksuid 命名避免冲突
func (s *Server) writeArtifact(kind, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(s.cfg.OutputDir, ksuid.New().String()+"_"+kind+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}
