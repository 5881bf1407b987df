package api

import (
	"encoding/json"
	"errors"

	"district-api/internal/session"

	"github.com/paulmach/orb"
)

// 文档注释：圈选形状的请求表达
// 背景：前端把绘制结果归一化为三种形状——点、框、环；坐标为 WGS84 经纬度。
// 约束：point 为 [lon,lat]；box 为 [minLon,minLat,maxLon,maxLat]；
// polygon 为顶点数组，未闭合时自动闭合。
type shapeReq struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

var errBadShape = errors.New("bad shape")

func parseShape(sr shapeReq) (orb.Geometry, error) {
	switch sr.Type {
	case "point":
		var c [2]float64
		if err := json.Unmarshal(sr.Coordinates, &c); err != nil {
			return nil, errBadShape
		}
		return orb.Point{c[0], c[1]}, nil
	case "box":
		var c [4]float64
		if err := json.Unmarshal(sr.Coordinates, &c); err != nil {
			return nil, errBadShape
		}
		if c[0] > c[2] || c[1] > c[3] {
			return nil, errBadShape
		}
		return orb.Bound{Min: orb.Point{c[0], c[1]}, Max: orb.Point{c[2], c[3]}}, nil
	case "polygon":
		var pts [][2]float64
		if err := json.Unmarshal(sr.Coordinates, &pts); err != nil || len(pts) < 3 {
			return nil, errBadShape
		}
		ring := make(orb.Ring, 0, len(pts)+1)
		for _, p := range pts {
			ring = append(ring, orb.Point{p[0], p[1]})
		}
		if !ring[0].Equal(ring[len(ring)-1]) {
			ring = append(ring, ring[0])
		}
		return orb.Polygon{ring}, nil
	}
	return nil, errBadShape
}

// toolForShape: 形状与圈选工具的对应；不匹配的组合在处理器层拒绝
func toolForShape(t string) (session.Tool, bool) {
	switch t {
	case "point":
		return session.ToolPoint, true
	case "box":
		return session.ToolBox, true
	case "polygon":
		return session.ToolPolygon, true
	}
	return "", false
}
