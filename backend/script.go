package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/chaos-io/topograph/codec"
	"github.com/chaos-io/topograph/grid"
)

// ScriptBackend 本地 python 脚本后端：输入输出走临时文件，
// 状态走 stdout 的 JSON 行（与 ml/ 下脚本的约定一致）
type ScriptBackend struct {
	Python    string
	ScriptDir string
	WorkDir   string

	log *zap.Logger
}

func NewScriptBackend(python, scriptDir, workDir string, log *zap.Logger) *ScriptBackend {
	return &ScriptBackend{
		Python:    python,
		ScriptDir: scriptDir,
		WorkDir:   workDir,
		log:       log,
	}
}

func (s *ScriptBackend) EstimateDepth(ctx context.Context, imagePNG []byte) (grid.Map, error) {
	ws, err := s.workspace()
	if err != nil {
		return grid.Map{}, err
	}
	defer s.cleanup(ws)

	inputPath := filepath.Join(ws, "depth_input.png")
	outputPath := filepath.Join(ws, "depth_output.bin")
	if err := os.WriteFile(inputPath, imagePNG, 0o644); err != nil {
		return grid.Map{}, fmt.Errorf("write depth input: %w", err)
	}

	st, err := s.run(ctx, "depth_estimate.py",
		"--input", inputPath,
		"--output", outputPath,
	)
	if err != nil {
		return grid.Map{}, err
	}
	if st.Width <= 0 || st.Height <= 0 {
		return grid.Map{}, fmt.Errorf("depth backend reported invalid shape %dx%d", st.Height, st.Width)
	}

	raw, err := os.ReadFile(outputPath)
	if err != nil {
		return grid.Map{}, fmt.Errorf("read depth output: %w", err)
	}
	values, err := codec.DecodeFloat32(raw, st.Height, st.Width)
	if err != nil {
		return grid.Map{}, err
	}
	return grid.FromData(st.Height, st.Width, values)
}

func (s *ScriptBackend) Inpaint(ctx context.Context, imagePNG, maskPNG []byte, prompt string) ([]byte, error) {
	ws, err := s.workspace()
	if err != nil {
		return nil, err
	}
	defer s.cleanup(ws)

	imagePath := filepath.Join(ws, "inpaint_image.png")
	maskPath := filepath.Join(ws, "inpaint_mask.png")
	outputPath := filepath.Join(ws, "inpaint_output.png")
	if err := os.WriteFile(imagePath, imagePNG, 0o644); err != nil {
		return nil, fmt.Errorf("write inpaint image: %w", err)
	}
	if err := os.WriteFile(maskPath, maskPNG, 0o644); err != nil {
		return nil, fmt.Errorf("write inpaint mask: %w", err)
	}

	if _, err := s.run(ctx, "inpaint.py",
		"--image", imagePath,
		"--mask", maskPath,
		"--prompt", prompt,
		"--output", outputPath,
	); err != nil {
		return nil, err
	}

	result, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("read inpaint output: %w", err)
	}
	return result, nil
}

func (s *ScriptBackend) Texture(ctx context.Context, req *TextureRequest) ([]byte, error) {
	ws, err := s.workspace()
	if err != nil {
		return nil, err
	}
	defer s.cleanup(ws)

	imagePath := filepath.Join(ws, "cn_image.png")
	depthPath := filepath.Join(ws, "cn_depth.png")
	maskPath := filepath.Join(ws, "cn_mask.png")
	outputPath := filepath.Join(ws, "cn_output.png")

	// 条件高度图转全对比度灰度 PNG
	depthPNG, err := codec.GrayPNG(req.Heightmap)
	if err != nil {
		return nil, fmt.Errorf("encode conditioning heightmap: %w", err)
	}

	files := map[string][]byte{
		imagePath: req.ImagePNG,
		depthPath: depthPNG,
		maskPath:  req.MaskPNG,
	}
	for path, data := range files {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write texture input %s: %w", filepath.Base(path), err)
		}
	}

	args := []string{
		"--image", imagePath,
		"--depth", depthPath,
		"--mask", maskPath,
		"--prompt", req.Prompt,
		"--output", outputPath,
	}
	if req.Negative != "" {
		args = append(args, "--negative", req.Negative)
	}
	if req.Steps > 0 {
		args = append(args, "--steps", strconv.Itoa(req.Steps))
	}
	if req.Guidance > 0 {
		args = append(args, "--guidance", strconv.FormatFloat(req.Guidance, 'f', -1, 64))
	}
	if req.Strength > 0 {
		args = append(args, "--strength", strconv.FormatFloat(req.Strength, 'f', -1, 64))
	}
	if req.ControlNetScale > 0 {
		args = append(args, "--controlnet_scale", strconv.FormatFloat(req.ControlNetScale, 'f', -1, 64))
	}
	if req.Seed >= 0 {
		args = append(args, "--seed", strconv.FormatInt(req.Seed, 10))
	}

	if _, err := s.run(ctx, "controlnet_texture.py", args...); err != nil {
		return nil, err
	}

	result, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("read texture output: %w", err)
	}
	return result, nil
}

// run 拉起脚本子进程并解析 stdout 末行的 JSON 状态
func (s *ScriptBackend) run(ctx context.Context, script string, args ...string) (*status, error) {
	scriptPath := filepath.Join(s.ScriptDir, script)
	if _, err := os.Stat(scriptPath); err != nil {
		return nil, fmt.Errorf("script not found: %s", scriptPath)
	}

	cmd := exec.CommandContext(ctx, s.Python, append([]string{scriptPath}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.log.Debug("running backend script", zap.String("script", script))
	err := cmd.Run()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w\nstdout: %s\nstderr: %s",
			script, err, stdout.String(), stderr.String())
	}

	st, perr := parseStatus(stdout.String())
	if perr != nil {
		return nil, fmt.Errorf("parse %s status: %w\nraw: %s", script, perr, stdout.String())
	}
	if !st.Success {
		return nil, fmt.Errorf("%s error: %s", script, st.Error)
	}

	s.log.Debug("backend script done", zap.String("script", script), zap.String("output", st.Output))
	return st, nil
}

// parseStatus 取 stdout 最后一个非空行作为状态 JSON
func parseStatus(stdout string) (*status, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return nil, fmt.Errorf("empty status output")
	}
	st := &status{}
	if err := json.Unmarshal([]byte(last), st); err != nil {
		return nil, err
	}
	return st, nil
}

// workspace 每次调用独立的 ksuid 命名临时目录
func (s *ScriptBackend) workspace() (string, error) {
	ws := filepath.Join(s.WorkDir, ksuid.New().String())
	if err := os.MkdirAll(ws, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return ws, nil
}

// cleanup 尽力清理，残留交给 janitor
func (s *ScriptBackend) cleanup(ws string) {
	if err := os.RemoveAll(ws); err != nil {
		s.log.Warn("cleanup workspace", zap.String("path", ws), zap.Error(err))
	}
}
