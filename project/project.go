// Package project .topo 工程档案：zip 容器，含
// manifest.json、heightmap.bin（原始 f32 布局）、可选 texture.png、settings.json
package project

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/chaos-io/topograph/codec"
	"github.com/chaos-io/topograph/grid"
)

const (
	FormatVersion = 1

	manifestName  = "manifest.json"
	heightmapName = "heightmap.bin"
	textureName   = "texture.png"
	settingsName  = "settings.json"
)

type Manifest struct {
	FormatVersion int    `json:"formatVersion"`
	AppVersion    string `json:"appVersion"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	CreatedAt     int64  `json:"createdAt"`
	HasTexture    bool   `json:"hasTexture"`
}

type Project struct {
	Heightmap  grid.Map
	TexturePNG []byte
	Settings   string
}

// Save 写出 .topo 档案；texturePNG 可为 nil，settings 为空时写 "{}"
func Save(w io.Writer, appVersion string, p *Project) error {
	if p.Heightmap.W <= 0 || p.Heightmap.H <= 0 {
		return &grid.ShapeError{H: p.Heightmap.H, W: p.Heightmap.W}
	}

	zw := zip.NewWriter(w)

	manifest := Manifest{
		FormatVersion: FormatVersion,
		AppVersion:    appVersion,
		Width:         p.Heightmap.W,
		Height:        p.Heightmap.H,
		CreatedAt:     time.Now().Unix(),
		HasTexture:    len(p.TexturePNG) > 0,
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeEntry(zw, manifestName, manifestJSON, zip.Deflate); err != nil {
		return err
	}

	if err := writeEntry(zw, heightmapName, codec.EncodeFloat32(p.Heightmap.Data), zip.Deflate); err != nil {
		return err
	}

	// PNG 本身已压缩，原样存储
	if len(p.TexturePNG) > 0 {
		if err := writeEntry(zw, textureName, p.TexturePNG, zip.Store); err != nil {
			return err
		}
	}

	settings := p.Settings
	if settings == "" {
		settings = "{}"
	}
	if err := writeEntry(zw, settingsName, []byte(settings), zip.Deflate); err != nil {
		return err
	}

	return zw.Close()
}

// Load 读回 .topo 档案，校验格式版本与高度图尺寸
func Load(r io.ReaderAt, size int64) (*Project, *Manifest, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid .topo archive: %w", err)
	}

	manifestData, err := readEntry(zr, manifestName)
	if err != nil {
		return nil, nil, fmt.Errorf("missing %s in .topo archive", manifestName)
	}
	manifest := &Manifest{}
	if err := json.Unmarshal(manifestData, manifest); err != nil {
		return nil, nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if manifest.FormatVersion > FormatVersion {
		return nil, nil, fmt.Errorf("project version %d is newer than supported version %d",
			manifest.FormatVersion, FormatVersion)
	}

	hmData, err := readEntry(zr, heightmapName)
	if err != nil {
		return nil, nil, fmt.Errorf("missing %s in .topo archive", heightmapName)
	}
	values, err := codec.DecodeFloat32(hmData, manifest.Height, manifest.Width)
	if err != nil {
		return nil, nil, err
	}
	hm, err := grid.FromData(manifest.Height, manifest.Width, values)
	if err != nil {
		return nil, nil, err
	}

	p := &Project{Heightmap: hm, Settings: "{}"}
	if manifest.HasTexture {
		if texture, err := readEntry(zr, textureName); err == nil {
			p.TexturePNG = texture
		}
	}
	if settings, err := readEntry(zr, settingsName); err == nil {
		p.Settings = string(settings)
	}

	return p, manifest, nil
}

func writeEntry(zw *zip.Writer, name string, data []byte, method uint16) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	return io.ReadAll(f)
}
