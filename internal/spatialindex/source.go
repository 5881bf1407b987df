package spatialindex

import (
	"context"
	"math"
	"os"
	"strconv"

	"district-api/internal/sources"

	"github.com/paulmach/orb"
)

// 文档注释：本地索引要素源
// 背景：将内存索引包装为统一的要素源，与 WFS 源同构参与圈选查询；
// 索引未就绪时心跳报错，管理器将其剔除直至换入快照。
type LocalSource struct {
	dyn *Dynamic
}

func NewLocalSource(dyn *Dynamic) *LocalSource { return &LocalSource{dyn: dyn} }

func (s *LocalSource) Name() string    { return "local" }
func (s *LocalSource) Version() string { return "1.0" }

func (s *LocalSource) Weight() float64 { return readWeight("SOURCE_WEIGHT_LOCAL", 5.0) }

func (s *LocalSource) Query(ctx context.Context, shape orb.Geometry, geolevelID int64) ([]sources.Unit, error) {
	ix := s.dyn.Get()
	if ix == nil {
		return nil, ErrNotReady
	}
	return ix.Intersecting(shape, geolevelID), nil
}

func (s *LocalSource) Heartbeat(ctx context.Context) error {
	if s.dyn.Get() == nil {
		return ErrNotReady
	}
	return nil
}

// 文档注释：读取权重（环境变量）
// 背景：允许通过环境变量微调各要素源权重，上限 10。
func readWeight(env string, def float64) float64 {
	s := os.Getenv(env)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	if f > 10 {
		return 10
	}
	return f
}
