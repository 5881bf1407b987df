package wfs

import (
	"context"
	"math"
	"os"
	"strconv"

	"district-api/internal/sources"

	"github.com/paulmach/orb"
)

// 文档注释：WFS 要素源
// 背景：将 WFS 客户端包装为统一要素源；权重默认高于本地索引，
// 服务端空间库是圈选命中的第一权威，索引仅作降级。
type Source struct {
	c *Client
}

func NewSource(c *Client) *Source { return &Source{c: c} }

func (s *Source) Name() string    { return "wfs" }
func (s *Source) Version() string { return "2.0.0" }

func (s *Source) Weight() float64 {
	v := os.Getenv("SOURCE_WEIGHT_WFS")
	if v == "" {
		return 8.0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 8.0
	}
	if f > 10 {
		return 10
	}
	return f
}

func (s *Source) Query(ctx context.Context, shape orb.Geometry, geolevelID int64) ([]sources.Unit, error) {
	return s.c.GetFeatures(ctx, shape, geolevelID)
}

func (s *Source) Heartbeat(ctx context.Context) error { return s.c.Ping(ctx) }
