package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chaos-io/topograph/grid"
)

// 用 shell 脚本顶替 python 脚本，校验子进程编排与状态协议
func writeStubScript(t *testing.T, dir, name, body string) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o755)
	require.NoError(t, err)
}

func newTestScriptBackend(t *testing.T, scriptDir string) *ScriptBackend {
	t.Helper()
	return NewScriptBackend("/bin/sh", scriptDir, t.TempDir(), zap.NewNop())
}

func TestScriptBackend_EstimateDepth(t *testing.T) {
	t.Parallel()

	scriptDir := t.TempDir()
	writeStubScript(t, scriptDir, "depth_estimate.py", `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--output" ]; then out="$2"; fi
  shift
done
head -c 64 /dev/zero > "$out"
echo "{\"success\": true, \"output\": \"$out\", \"width\": 4, \"height\": 4}"
`)

	b := newTestScriptBackend(t, scriptDir)
	m, err := b.EstimateDepth(context.Background(), []byte("fake-png"))
	require.NoError(t, err)
	assert.Equal(t, 4, m.W)
	assert.Equal(t, 4, m.H)
	for _, v := range m.Data {
		assert.Equal(t, float32(0), v)
	}
}

func TestScriptBackend_EstimateDepth_SizeMismatch(t *testing.T) {
	t.Parallel()

	scriptDir := t.TempDir()
	// 申报 4x4 却只写 8 字节
	writeStubScript(t, scriptDir, "depth_estimate.py", `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--output" ]; then out="$2"; fi
  shift
done
head -c 8 /dev/zero > "$out"
echo "{\"success\": true, \"output\": \"$out\", \"width\": 4, \"height\": 4}"
`)

	b := newTestScriptBackend(t, scriptDir)
	_, err := b.EstimateDepth(context.Background(), []byte("fake-png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size mismatch")
}

func TestScriptBackend_ReportedFailure(t *testing.T) {
	t.Parallel()

	scriptDir := t.TempDir()
	writeStubScript(t, scriptDir, "inpaint.py", `#!/bin/sh
echo "{\"success\": false, \"error\": \"CUDA out of memory\"}"
`)

	b := newTestScriptBackend(t, scriptDir)
	_, err := b.Inpaint(context.Background(), []byte("img"), []byte("mask"), "crater")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestScriptBackend_ScriptMissing(t *testing.T) {
	t.Parallel()

	b := newTestScriptBackend(t, t.TempDir())
	_, err := b.Inpaint(context.Background(), []byte("img"), []byte("mask"), "crater")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script not found")
}

func TestScriptBackend_Texture(t *testing.T) {
	t.Parallel()

	scriptDir := t.TempDir()
	// 回读脚本看到的输入文件并产出固定生成图
	writeStubScript(t, scriptDir, "controlnet_texture.py", `#!/bin/sh
out=""
depth=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--output" ]; then out="$2"; fi
  if [ "$1" = "--depth" ]; then depth="$2"; fi
  shift
done
[ -s "$depth" ] || { echo "{\"success\": false, \"error\": \"missing depth\"}"; exit 0; }
printf "generated-bytes" > "$out"
echo "{\"success\": true, \"output\": \"$out\"}"
`)

	hm := grid.New(2, 2)
	copy(hm.Data, []float32{0, 0.5, 0.5, 1})

	b := newTestScriptBackend(t, scriptDir)
	out, err := b.Texture(context.Background(), &TextureRequest{
		ImagePNG:  []byte("img"),
		MaskPNG:   []byte("mask"),
		Prompt:    "lush green forest",
		Heightmap: hm,
		Steps:     30,
		Guidance:  7.5,
		Strength:  0.65,
		Seed:      -1,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("generated-bytes"), out)
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		stdout   string
		wantErr  bool
		wantOK   bool
		wantSize [2]int
	}{
		{
			name:     "纯状态行",
			stdout:   `{"success": true, "output": "/tmp/x.bin", "width": 512, "height": 512}`,
			wantOK:   true,
			wantSize: [2]int{512, 512},
		},
		{
			name:   "混入调试输出取末行",
			stdout: "Using device: cpu\n{\"success\": true, \"output\": \"a.png\"}\n",
			wantOK: true,
		},
		{
			name:    "空输出",
			stdout:  "  \n ",
			wantErr: true,
		},
		{
			name:    "非JSON",
			stdout:  "Traceback (most recent call last)",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := parseStatus(tt.stdout)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, st.Success)
			if tt.wantSize != [2]int{} {
				assert.Equal(t, tt.wantSize[0], st.Width)
				assert.Equal(t, tt.wantSize[1], st.Height)
			}
		})
	}
}
