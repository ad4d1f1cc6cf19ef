package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chaos-io/topograph/backend"
	"github.com/chaos-io/topograph/codec"
	"github.com/chaos-io/topograph/config"
	"github.com/chaos-io/topograph/grid"
	"github.com/chaos-io/topograph/util"
)

// fakeGen 可编程的生成后端桩
type fakeGen struct {
	depth    grid.Map
	depthErr error
	imagePNG []byte

	lastTexture *backend.TextureRequest
}

func (f *fakeGen) EstimateDepth(_ context.Context, _ []byte) (grid.Map, error) {
	if f.depthErr != nil {
		return grid.Map{}, f.depthErr
	}
	return f.depth, nil
}

func (f *fakeGen) Inpaint(_ context.Context, _, _ []byte, _ string) ([]byte, error) {
	return f.imagePNG, nil
}

func (f *fakeGen) Texture(_ context.Context, req *backend.TextureRequest) ([]byte, error) {
	f.lastTexture = req
	return f.imagePNG, nil
}

func testRouter(t *testing.T, gen backend.Generator) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		OutputDir:    t.TempDir(),
		PipelineSize: 8,
	}
	return NewServer(cfg, gen, zap.NewNop()).Router()
}

func testPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	data, err := util.EncodePNG(img)
	require.NoError(t, err)
	return data
}

type multipartBody struct {
	buf    bytes.Buffer
	writer *multipart.Writer
}

func newMultipart() *multipartBody {
	m := &multipartBody{}
	m.writer = multipart.NewWriter(&m.buf)
	return m
}

func (m *multipartBody) file(t *testing.T, field, name string, data []byte) *multipartBody {
	t.Helper()
	w, err := m.writer.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	return m
}

func (m *multipartBody) field(field, value string) *multipartBody {
	_ = m.writer.WriteField(field, value)
	return m
}

func (m *multipartBody) request(t *testing.T, path string) *http.Request {
	t.Helper()
	require.NoError(t, m.writer.Close())
	req := httptest.NewRequest("POST", path, &m.buf)
	req.Header.Set("Content-Type", m.writer.FormDataContentType())
	return req
}

func doRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	router := testRouter(t, &fakeGen{})
	rec := doRequest(router, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleDepth(t *testing.T) {
	raw := grid.New(4, 4)
	for i := range raw.Data {
		raw.Data[i] = float32(i)
	}
	router := testRouter(t, &fakeGen{depth: raw})

	req := newMultipart().
		file(t, "image", "terrain.png", testPNG(t, 8, 8, color.NRGBA{R: 100, A: 255})).
		field("width", "8").
		field("height", "8").
		request(t, "/api/v1/depth")
	rec := doRequest(router, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Success bool   `json:"success"`
		Output  string `json:"output"`
		Width   int    `json:"width"`
		Height  int    `json:"height"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 8, resp.Width)

	// 产物是 8*8*4 字节的 f32 流，值全部落在 [0,1]
	data, err := os.ReadFile(resp.Output)
	require.NoError(t, err)
	require.Len(t, data, 8*8*4)
	values, err := codec.DecodeFloat32(data, 8, 8)
	require.NoError(t, err)
	for _, v := range values {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestHandleDepth_BackendError(t *testing.T) {
	router := testRouter(t, &fakeGen{depthErr: fmt.Errorf("depth model exploded")})

	req := newMultipart().
		file(t, "image", "terrain.png", testPNG(t, 8, 8, color.NRGBA{A: 255})).
		request(t, "/api/v1/depth")
	rec := doRequest(router, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "depth model exploded")
}

func TestHandleDepth_MissingImage(t *testing.T) {
	router := testRouter(t, &fakeGen{})
	rec := doRequest(router, newMultipart().field("width", "8").request(t, "/api/v1/depth"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleInpaint(t *testing.T) {
	gen := &fakeGen{imagePNG: testPNG(t, 8, 8, color.NRGBA{R: 200, G: 200, B: 200, A: 255})}
	router := testRouter(t, gen)

	// 中央白块遮罩
	mask := image.NewGray(image.Rect(0, 0, 8, 8))
	for y := 3; y < 5; y++ {
		for x := 3; x < 5; x++ {
			mask.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	maskPNG, err := util.EncodePNG(mask)
	require.NoError(t, err)

	req := newMultipart().
		file(t, "image", "terrain.png", testPNG(t, 8, 8, color.NRGBA{A: 255})).
		file(t, "mask", "mask.png", maskPNG).
		field("prompt", "volcanic crater").
		field("feather", "1").
		request(t, "/api/v1/inpaint")
	rec := doRequest(router, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Success bool   `json:"success"`
		Output  string `json:"output"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	// 合成结果：块心亮、远角保持原图
	out, err := util.OpenImage(resp.Output)
	require.NoError(t, err)
	bounds := out.Bounds()
	assert.Equal(t, 8, bounds.Dx())
	center, _, _, _ := out.At(3, 3).RGBA()
	corner, _, _, _ := out.At(0, 0).RGBA()
	assert.Greater(t, center, corner)
}

func TestHandleInpaint_MissingPrompt(t *testing.T) {
	router := testRouter(t, &fakeGen{})

	req := newMultipart().
		file(t, "image", "terrain.png", testPNG(t, 8, 8, color.NRGBA{A: 255})).
		file(t, "mask", "mask.png", testPNG(t, 8, 8, color.NRGBA{A: 255})).
		request(t, "/api/v1/inpaint")
	rec := doRequest(router, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTexture_DerivesConditioning(t *testing.T) {
	raw := grid.New(4, 4)
	for i := range raw.Data {
		raw.Data[i] = float32(i)
	}
	gen := &fakeGen{
		depth:    raw,
		imagePNG: testPNG(t, 8, 8, color.NRGBA{R: 30, G: 120, B: 40, A: 255}),
	}
	router := testRouter(t, gen)

	req := newMultipart().
		file(t, "image", "terrain.png", testPNG(t, 8, 8, color.NRGBA{A: 255})).
		file(t, "mask", "mask.png", testPNG(t, 8, 8, color.NRGBA{R: 255, G: 255, B: 255, A: 255})).
		field("prompt", "lush green forest").
		request(t, "/api/v1/texture")
	rec := doRequest(router, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// 未上传高度图时应现跑深度估计并重采样到流水线分辨率
	require.NotNil(t, gen.lastTexture)
	assert.Equal(t, 8, gen.lastTexture.Heightmap.W)
	assert.Equal(t, 8, gen.lastTexture.Heightmap.H)
	assert.Equal(t, "lush green forest", gen.lastTexture.Prompt)
	assert.Equal(t, 30, gen.lastTexture.Steps)
}

func TestHandleExport(t *testing.T) {
	router := testRouter(t, &fakeGen{})

	hm := grid.New(3, 3)
	for i := range hm.Data {
		hm.Data[i] = float32(i) / 8.0
	}
	bin := codec.EncodeFloat32(hm.Data)

	tests := []struct {
		format      string
		contentType string
		check       func(t *testing.T, body []byte)
	}{
		{
			format:      "raw",
			contentType: "application/octet-stream",
			check: func(t *testing.T, body []byte) {
				assert.Equal(t, bin, body)
			},
		},
		{
			format:      "png16",
			contentType: "image/png",
			check: func(t *testing.T, body []byte) {
				assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, body[:4])
			},
		},
		{
			format:      "stl",
			contentType: "model/stl",
			check: func(t *testing.T, body []byte) {
				assert.Contains(t, string(body), "solid topograph_relief")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			req := newMultipart().
				file(t, "heightmap", "heightmap.bin", bin).
				field("hm_width", "3").
				field("hm_height", "3").
				field("format", tt.format).
				request(t, "/api/v1/heightmap/export")
			rec := doRequest(router, req)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.contentType, rec.Header().Get("Content-Type"))
			tt.check(t, rec.Body.Bytes())
		})
	}
}

func TestHandleExport_BadShape(t *testing.T) {
	router := testRouter(t, &fakeGen{})

	req := newMultipart().
		file(t, "heightmap", "heightmap.bin", make([]byte, 36)).
		field("hm_width", "0").
		field("hm_height", "3").
		request(t, "/api/v1/heightmap/export")
	rec := doRequest(router, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProjectPackUnpack(t *testing.T) {
	router := testRouter(t, &fakeGen{})

	hm := grid.New(2, 2)
	copy(hm.Data, []float32{0, 0.5, 0.5, 1})
	bin := codec.EncodeFloat32(hm.Data)

	packReq := newMultipart().
		file(t, "heightmap", "heightmap.bin", bin).
		field("hm_width", "2").
		field("hm_height", "2").
		field("settings", `{"theme":"desert"}`).
		request(t, "/api/v1/project/pack")
	packRec := doRequest(router, packReq)
	require.Equal(t, http.StatusOK, packRec.Code, packRec.Body.String())
	assert.Equal(t, "application/zip", packRec.Header().Get("Content-Type"))

	unpackReq := newMultipart().
		file(t, "project", "scene.topo", packRec.Body.Bytes()).
		request(t, "/api/v1/project/unpack")
	unpackRec := doRequest(router, unpackReq)
	require.Equal(t, http.StatusOK, unpackRec.Code, unpackRec.Body.String())

	var resp struct {
		Success   bool            `json:"success"`
		Manifest  json.RawMessage `json:"manifest"`
		Heightmap string          `json:"heightmap"`
		Settings  string          `json:"settings"`
	}
	require.NoError(t, json.Unmarshal(unpackRec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, `{"theme":"desert"}`, resp.Settings)
	assert.NotEmpty(t, resp.Heightmap)
}
