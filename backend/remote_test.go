package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/topograph/codec"
	"github.com/chaos-io/topograph/grid"
)

func TestRemoteBackend_EstimateDepth(t *testing.T) {
	t.Parallel()

	depth := []float32{1, 2, 3, 4, 5, 6}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/depth", r.URL.Path)
		assert.Equal(t, "POST", r.Method)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req["image"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"width":   3,
			"height":  2,
			"depth":   base64.StdEncoding.EncodeToString(codec.EncodeFloat32(depth)),
		})
	}))
	defer server.Close()

	b := NewRemoteBackend(server.URL + "/")
	m, err := b.EstimateDepth(context.Background(), []byte("fake-png"))
	require.NoError(t, err)
	assert.Equal(t, 3, m.W)
	assert.Equal(t, 2, m.H)
	assert.Equal(t, depth, m.Data)
}

func TestRemoteBackend_Inpaint(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/inpaint", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"image":   base64.StdEncoding.EncodeToString([]byte("generated")),
		})
	}))
	defer server.Close()

	b := NewRemoteBackend(server.URL)
	out, err := b.Inpaint(context.Background(), []byte("img"), []byte("mask"), "crater")
	require.NoError(t, err)
	assert.Equal(t, []byte("generated"), out)
}

func TestRemoteBackend_Texture_ReportedError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "model not loaded",
		})
	}))
	defer server.Close()

	b := NewRemoteBackend(server.URL)
	_, err := b.Texture(context.Background(), &TextureRequest{
		ImagePNG:  []byte("img"),
		MaskPNG:   []byte("mask"),
		Prompt:    "forest",
		Heightmap: grid.New(2, 2),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestRemoteBackend_HTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	b := NewRemoteBackend(server.URL)
	_, err := b.EstimateDepth(context.Background(), []byte("img"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
