// 包 spatialindex：地理单元的常驻内存空间索引
// 背景：WFS 不可用或未配置时，圈选查询回退到本地索引；从数据库几何列
// 构建，包围盒粗筛后做精确相交判定。
package spatialindex

import (
	"errors"
	"time"

	"district-api/internal/sources"
	"district-api/internal/store"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

type feature struct {
	unit  sources.Unit
	geom  orb.Geometry
	bound orb.Bound
}

// Index: 只读快照；按层级分桶，构建后不再变更
type Index struct {
	byLevel map[int64][]feature
	count   int
	builtAt time.Time
}

// Build: 从数据库单元集合构建索引
// 约束：几何列须为 GeoJSON Geometry 文本；解析失败的单元跳过并计外部日志，
// 不中断整体构建。
func Build(units []store.GeoUnit) (*Index, int) {
	ix := &Index{byLevel: make(map[int64][]feature), builtAt: time.Now()}
	skipped := 0
	for _, u := range units {
		g, err := geojson.UnmarshalGeometry([]byte(u.Geom))
		if err != nil {
			skipped++
			continue
		}
		geom := g.Geometry()
		ix.byLevel[u.GeolevelID] = append(ix.byLevel[u.GeolevelID], feature{
			unit:  sources.Unit{ID: u.ID, GeolevelID: u.GeolevelID, PortableID: u.PortableID},
			geom:  geom,
			bound: geom.Bound(),
		})
		ix.count++
	}
	return ix, skipped
}

func (ix *Index) Count() int         { return ix.count }
func (ix *Index) BuiltAt() time.Time { return ix.builtAt }

// Intersecting: intersects 语义查询；geolevelID 限定层级
func (ix *Index) Intersecting(shape orb.Geometry, geolevelID int64) []sources.Unit {
	sb := shape.Bound()
	var out []sources.Unit
	for _, f := range ix.byLevel[geolevelID] {
		// 包围盒粗筛
		if !f.bound.Intersects(sb) {
			continue
		}
		if intersects(shape, f.geom) {
			out = append(out, f.unit)
		}
	}
	return out
}

// intersects: 两几何是否相交
// 背景：点查走点入面判定；面与面先互验顶点包含，再做外环线段求交，
// 覆盖包含、被包含与部分重叠三类情形。
func intersects(a, b orb.Geometry) bool {
	if p, ok := a.(orb.Point); ok {
		return containsPoint(b, p)
	}
	if p, ok := b.(orb.Point); ok {
		return containsPoint(a, p)
	}
	for _, v := range vertices(a) {
		if containsPoint(b, v) {
			return true
		}
	}
	for _, v := range vertices(b) {
		if containsPoint(a, v) {
			return true
		}
	}
	return ringsCross(a, b)
}

func containsPoint(g orb.Geometry, p orb.Point) bool {
	switch t := g.(type) {
	case orb.Point:
		return t.Equal(p)
	case orb.Polygon:
		return planar.PolygonContains(t, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(t, p)
	case orb.Bound:
		return t.Contains(p)
	}
	return false
}

func vertices(g orb.Geometry) []orb.Point {
	var out []orb.Point
	for _, r := range rings(g) {
		out = append(out, r...)
	}
	return out
}

// rings: 取外环集合；洞不参与相交粗判（洞边缘重叠按相交处理可接受）
func rings(g orb.Geometry) []orb.Ring {
	switch t := g.(type) {
	case orb.Polygon:
		if len(t) > 0 {
			return []orb.Ring{t[0]}
		}
	case orb.MultiPolygon:
		var out []orb.Ring
		for _, p := range t {
			if len(p) > 0 {
				out = append(out, p[0])
			}
		}
		return out
	case orb.Bound:
		return []orb.Ring{t.ToPolygon()[0]}
	case orb.LineString:
		return []orb.Ring{orb.Ring(t)}
	}
	return nil
}

func ringsCross(a, b orb.Geometry) bool {
	ra := rings(a)
	rb := rings(b)
	for _, r1 := range ra {
		for _, r2 := range rb {
			if ringSegmentsCross(r1, r2) {
				return true
			}
		}
	}
	return false
}

func ringSegmentsCross(r1, r2 orb.Ring) bool {
	for i := 0; i+1 < len(r1); i++ {
		for j := 0; j+1 < len(r2); j++ {
			if segmentsIntersect(r1[i], r1[i+1], r2[j], r2[j+1]) {
				return true
			}
		}
	}
	return false
}

// segmentsIntersect: 线段求交（方向叉积符号判定，含共线端点粗判）
func segmentsIntersect(p1, p2, p3, p4 orb.Point) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	if d1 == 0 && onSegment(p3, p4, p1) {
		return true
	}
	if d2 == 0 && onSegment(p3, p4, p2) {
		return true
	}
	if d3 == 0 && onSegment(p1, p2, p3) {
		return true
	}
	if d4 == 0 && onSegment(p1, p2, p4) {
		return true
	}
	return false
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, c orb.Point) bool {
	return min(a[0], b[0]) <= c[0] && c[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= c[1] && c[1] <= max(a[1], b[1])
}

var ErrNotReady = errors.New("spatial index not ready")
