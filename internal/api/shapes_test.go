package api

import (
	"encoding/json"
	"testing"

	"district-api/internal/session"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShapePoint(t *testing.T) {
	g, err := parseShape(shapeReq{Type: "point", Coordinates: json.RawMessage(`[-122.4,37.7]`)})
	require.NoError(t, err)
	p, ok := g.(orb.Point)
	require.True(t, ok)
	assert.Equal(t, orb.Point{-122.4, 37.7}, p)
}

func TestParseShapeBox(t *testing.T) {
	g, err := parseShape(shapeReq{Type: "box", Coordinates: json.RawMessage(`[-123,37,-122,38]`)})
	require.NoError(t, err)
	b, ok := g.(orb.Bound)
	require.True(t, ok)
	assert.Equal(t, orb.Point{-123, 37}, b.Min)
	assert.Equal(t, orb.Point{-122, 38}, b.Max)

	// 反向范围拒绝
	_, err = parseShape(shapeReq{Type: "box", Coordinates: json.RawMessage(`[-122,38,-123,37]`)})
	assert.Error(t, err)
}

func TestParseShapePolygonAutoCloses(t *testing.T) {
	g, err := parseShape(shapeReq{Type: "polygon", Coordinates: json.RawMessage(`[[0,0],[1,0],[1,1]]`)})
	require.NoError(t, err)
	poly, ok := g.(orb.Polygon)
	require.True(t, ok)
	require.Len(t, poly[0], 4)
	assert.Equal(t, poly[0][0], poly[0][3])

	// 已闭合不再追加
	g, err = parseShape(shapeReq{Type: "polygon", Coordinates: json.RawMessage(`[[0,0],[1,0],[1,1],[0,0]]`)})
	require.NoError(t, err)
	assert.Len(t, g.(orb.Polygon)[0], 4)
}

func TestParseShapeRejectsBadInput(t *testing.T) {
	_, err := parseShape(shapeReq{Type: "polygon", Coordinates: json.RawMessage(`[[0,0],[1,0]]`)})
	assert.Error(t, err)
	_, err = parseShape(shapeReq{Type: "circle", Coordinates: json.RawMessage(`[0,0,1]`)})
	assert.Error(t, err)
	_, err = parseShape(shapeReq{Type: "point", Coordinates: json.RawMessage(`"oops"`)})
	assert.Error(t, err)
}

func TestToolForShape(t *testing.T) {
	tool, ok := toolForShape("point")
	require.True(t, ok)
	assert.Equal(t, session.ToolPoint, tool)
	tool, ok = toolForShape("box")
	require.True(t, ok)
	assert.Equal(t, session.ToolBox, tool)
	tool, ok = toolForShape("polygon")
	require.True(t, ok)
	assert.Equal(t, session.ToolPolygon, tool)
	_, ok = toolForShape("navigate")
	assert.False(t, ok)
}
