package backend

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/chaos-io/topograph/codec"
	"github.com/chaos-io/topograph/grid"
	nhttp "github.com/chaos-io/topograph/util/http"
)

// RemoteBackend HTTP 推理服务后端，图像随 JSON base64 内联上送
type RemoteBackend struct {
	baseURL string
	cli     nhttp.IClient
}

func NewRemoteBackend(baseURL string) *RemoteBackend {
	return &RemoteBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		cli:     nhttp.NewHTTPClient(),
	}
}

type remoteResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	// base64 负载：depth 为原始 f32 字节流，image 为 PNG
	Depth string `json:"depth"`
	Image string `json:"image"`
}

func (r *RemoteBackend) EstimateDepth(ctx context.Context, imagePNG []byte) (grid.Map, error) {
	resp, err := r.post(ctx, "/api/depth", map[string]any{
		"image": base64.StdEncoding.EncodeToString(imagePNG),
	})
	if err != nil {
		return grid.Map{}, err
	}

	raw, err := base64.StdEncoding.DecodeString(resp.Depth)
	if err != nil {
		return grid.Map{}, fmt.Errorf("decode depth payload: %w", err)
	}
	values, err := codec.DecodeFloat32(raw, resp.Height, resp.Width)
	if err != nil {
		return grid.Map{}, err
	}
	return grid.FromData(resp.Height, resp.Width, values)
}

func (r *RemoteBackend) Inpaint(ctx context.Context, imagePNG, maskPNG []byte, prompt string) ([]byte, error) {
	resp, err := r.post(ctx, "/api/inpaint", map[string]any{
		"image":  base64.StdEncoding.EncodeToString(imagePNG),
		"mask":   base64.StdEncoding.EncodeToString(maskPNG),
		"prompt": prompt,
	})
	if err != nil {
		return nil, err
	}
	return decodeImagePayload(resp)
}

func (r *RemoteBackend) Texture(ctx context.Context, req *TextureRequest) ([]byte, error) {
	depthPNG, err := codec.GrayPNG(req.Heightmap)
	if err != nil {
		return nil, fmt.Errorf("encode conditioning heightmap: %w", err)
	}

	resp, err := r.post(ctx, "/api/texture", map[string]any{
		"image":            base64.StdEncoding.EncodeToString(req.ImagePNG),
		"mask":             base64.StdEncoding.EncodeToString(req.MaskPNG),
		"depth":            base64.StdEncoding.EncodeToString(depthPNG),
		"prompt":           req.Prompt,
		"negative":         req.Negative,
		"steps":            req.Steps,
		"guidance":         req.Guidance,
		"strength":         req.Strength,
		"controlnet_scale": req.ControlNetScale,
		"seed":             req.Seed,
	})
	if err != nil {
		return nil, err
	}
	return decodeImagePayload(resp)
}

func (r *RemoteBackend) post(ctx context.Context, path string, body map[string]any) (*remoteResponse, error) {
	resp := &remoteResponse{}
	err := r.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: r.baseURL + path,
		Method:     "POST",
		Header:     map[string]string{"Content-Type": "application/json"},
		Body:       body,
		Response:   resp,
	})
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("remote backend error: %s", resp.Error)
	}
	return resp, nil
}

func decodeImagePayload(resp *remoteResponse) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(resp.Image)
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("remote backend returned empty image")
	}
	return data, nil
}
