package stl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/topograph/grid"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	hm := grid.New(3, 3)
	copy(hm.Data, []float32{0, 0.5, 1, 0.5, 1, 0.5, 1, 0.5, 0})

	var buf bytes.Buffer
	err := Generate(&buf, hm, 30, 2, 1)
	require.NoError(t, err)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "solid topograph_relief\n"))
	assert.True(t, strings.HasSuffix(out, "endsolid topograph_relief\n"))

	// 3x3 网格：顶面 8 + 底面 8 + 四边 16 个三角面
	assert.Equal(t, 32, strings.Count(out, "facet normal"))
	assert.Equal(t, strings.Count(out, "facet normal"), strings.Count(out, "endfacet"))
	assert.Equal(t, 3*strings.Count(out, "endfacet"), strings.Count(out, "vertex"))
}

func TestGenerate_TooSmall(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := Generate(&buf, grid.New(1, 3), 30, 2, 1)
	require.Error(t, err)

	var shapeErr *grid.ShapeError
	assert.ErrorAs(t, err, &shapeErr)
}
