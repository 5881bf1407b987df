package spatialindex

import (
	"context"
	"fmt"
	"testing"

	"district-api/internal/store"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 三个相邻单位方格：[0,1]x[0,1]、[1,2]x[0,1]、[2,3]x[0,1]
func testUnits() []store.GeoUnit {
	sq := func(id int64, x0 float64, pid string) store.GeoUnit {
		return store.GeoUnit{
			ID: id, GeolevelID: 1, PortableID: pid,
			Geom: `{"type":"Polygon","coordinates":[[` +
				coord(x0, 0) + "," + coord(x0+1, 0) + "," + coord(x0+1, 1) + "," + coord(x0, 1) + "," + coord(x0, 0) +
				`]]}`,
		}
	}
	return []store.GeoUnit{
		sq(1, 0, "u001"),
		sq(2, 1, "u002"),
		sq(3, 2, "u003"),
	}
}

func coord(x, y float64) string {
	return fmt.Sprintf("[%g,%g]", x, y)
}

func TestBuildSkipsBadGeometry(t *testing.T) {
	units := append(testUnits(), store.GeoUnit{ID: 9, GeolevelID: 1, Geom: "not geojson"})
	ix, skipped := Build(units)
	assert.Equal(t, 3, ix.Count())
	assert.Equal(t, 1, skipped)
}

func TestIntersectingPoint(t *testing.T) {
	ix, _ := Build(testUnits())
	hits := ix.Intersecting(orb.Point{0.5, 0.5}, 1)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), hits[0].ID)
	assert.Equal(t, "u001", hits[0].PortableID)

	assert.Empty(t, ix.Intersecting(orb.Point{5, 5}, 1))
}

func TestIntersectingBox(t *testing.T) {
	ix, _ := Build(testUnits())
	// 覆盖前两格，第三格不沾边
	box := orb.Bound{Min: orb.Point{0.2, 0.2}, Max: orb.Point{1.8, 0.8}}
	hits := ix.Intersecting(box, 1)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].ID)
	assert.Equal(t, int64(2), hits[1].ID)
}

func TestIntersectingPolygonPartialOverlap(t *testing.T) {
	ix, _ := Build(testUnits())
	// 三角形斜跨第二、三格
	tri := orb.Polygon{{{1.5, 0.5}, {2.5, 0.5}, {2, 0.9}, {1.5, 0.5}}}
	hits := ix.Intersecting(tri, 1)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(2), hits[0].ID)
	assert.Equal(t, int64(3), hits[1].ID)
}

func TestIntersectingContainment(t *testing.T) {
	ix, _ := Build(testUnits())
	// 查询几何完全落入第一格内部
	inner := orb.Polygon{{{0.3, 0.3}, {0.7, 0.3}, {0.7, 0.7}, {0.3, 0.7}, {0.3, 0.3}}}
	hits := ix.Intersecting(inner, 1)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), hits[0].ID)

	// 查询几何完全包住第一格
	outer := orb.Polygon{{{-1, -1}, {1.05, -1}, {1.05, 2}, {-1, 2}, {-1, -1}}}
	hits = ix.Intersecting(outer, 1)
	assert.GreaterOrEqual(t, len(hits), 1)
}

func TestIntersectingWrongGeolevel(t *testing.T) {
	ix, _ := Build(testUnits())
	assert.Empty(t, ix.Intersecting(orb.Point{0.5, 0.5}, 2))
}

func TestDynamicSourceNotReady(t *testing.T) {
	dyn := &Dynamic{}
	src := NewLocalSource(dyn)
	assert.Error(t, src.Heartbeat(context.Background()))
	_, err := src.Query(context.Background(), orb.Point{0, 0}, 1)
	assert.ErrorIs(t, err, ErrNotReady)

	ix, _ := Build(testUnits())
	dyn.Set(ix)
	assert.NoError(t, src.Heartbeat(context.Background()))
	hits, err := src.Query(context.Background(), orb.Point{0.5, 0.5}, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}
