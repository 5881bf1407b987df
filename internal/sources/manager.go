package sources

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"district-api/internal/logger"
	"district-api/internal/metrics"

	"github.com/paulmach/orb"
)

// Unit: 要素源返回的地理单元引用；几何留在图层侧，这里只携带标识
type Unit struct {
	ID         int64  `json:"id"`
	GeolevelID int64  `json:"geolevel_id"`
	PortableID string `json:"portable_id"`
}

// 文档注释：要素源接口（统一契约）
// 背景：抽象 WFS 与本地空间索引为同构数据源，圈选查询通过统一接口下发；
// 源侧自报权重，管理器按权重挑选健康源。
// 约束：Query 以 intersects 语义返回命中单元；Heartbeat 用于健康检测与剔除。
type Source interface {
	Name() string
	Version() string
	Weight() float64
	Query(ctx context.Context, shape orb.Geometry, geolevelID int64) ([]Unit, error)
	Heartbeat(ctx context.Context) error
}

var ErrNoHealthySource = errors.New("no healthy feature source")

// 文档注释：要素源健康状态缓存
// 背景：记录健康与最近心跳时间；管理层据此筛选“健康源集合”。
type status struct {
	healthy bool
	last    time.Time
}

// 文档注释：要素源管理器
// 背景：负责源注册、心跳、健康筛选；圈选查询走最高权重的健康源。
// 约束：心跳周期默认 10s；心跳异常视为不健康，自动从集合剔除；线程安全读写。
type Manager struct {
	mu         sync.RWMutex
	ss         map[string]Source
	st         map[string]status
	hbInterval time.Duration
}

func NewManager() *Manager {
	return &Manager{ss: make(map[string]Source), st: make(map[string]status), hbInterval: 10 * time.Second}
}

// 文档注释：注册要素源
// 背景：进程内源（本地索引）与外部源（WFS）均通过此方法注册；默认设置为健康以便参与查询。
func (m *Manager) Register(s Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ss[s.Name()] = s
	m.st[s.Name()] = status{healthy: true, last: time.Now()}
	logger.L().Info("source_registered", "name", s.Name(), "version", s.Version(), "weight", s.Weight())
}

// 文档注释：获取健康源集合（按权重降序）
func (m *Manager) HealthySources() []Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Source
	for k, s := range m.ss {
		if m.st[k].healthy {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weight() > out[j].Weight() })
	return out
}

// 文档注释：启动心跳循环
// 背景：周期性调用源 Heartbeat 更新健康状态；在 ctx 取消时停止。
func (m *Manager) Start(ctx context.Context) {
	t := time.NewTicker(m.hbInterval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.doHeartbeat(ctx)
			}
		}
	}()
}

func (m *Manager) doHeartbeat(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, s := range m.ss {
		err := s.Heartbeat(ctx)
		if err != nil {
			m.st[k] = status{healthy: false, last: time.Now()}
			logger.L().Debug("source_heartbeat_fail", "name", s.Name(), "err", err)
			metrics.SourceHeartbeatTotal.WithLabelValues(s.Name(), "fail").Inc()
		} else {
			m.st[k] = status{healthy: true, last: time.Now()}
			logger.L().Debug("source_heartbeat_ok", "name", s.Name())
			metrics.SourceHeartbeatTotal.WithLabelValues(s.Name(), "ok").Inc()
		}
	}
}

// 文档注释：圈选查询入口
// 背景：按权重依次尝试健康源，首个成功结果即返回；失败源当次跳过，
// 健康状态交由心跳循环矫正。返回命中单元与来源名。
func (m *Manager) Query(ctx context.Context, shape orb.Geometry, geolevelID int64) ([]Unit, string, error) {
	hs := m.HealthySources()
	if len(hs) == 0 {
		return nil, "", ErrNoHealthySource
	}
	var lastErr error
	for _, s := range hs {
		t0 := time.Now()
		metrics.SourceRequestsTotal.WithLabelValues(s.Name()).Inc()
		units, err := s.Query(ctx, shape, geolevelID)
		ms := float64(time.Since(t0).Milliseconds())
		metrics.SourceDurationMs.WithLabelValues(s.Name()).Observe(ms)
		if err != nil {
			metrics.SourceFailTotal.WithLabelValues(s.Name()).Inc()
			logger.L().Debug("source_query_fail", "name", s.Name(), "err", err)
			lastErr = err
			continue
		}
		metrics.SourceSuccessTotal.WithLabelValues(s.Name()).Inc()
		logger.L().Debug("source_query_ok", "name", s.Name(), "units", len(units), "duration_ms", ms)
		return units, s.Name(), nil
	}
	return nil, "", lastErr
}
