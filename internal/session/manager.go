package session

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"district-api/internal/logger"
	"district-api/internal/metrics"

	"github.com/google/uuid"
)

// 文档注释：会话管理器
// 背景：进程内持有全部活动会话；后台循环按 TTL 回收闲置会话，
// 避免被遗弃的浏览器标签页长期占用内存。
// 约束：默认 TTL 3600 秒，可经 SESSION_TTL_SECONDS 调整；线程安全读写。
type Manager struct {
	mu  sync.RWMutex
	ss  map[string]*Session
	ttl time.Duration
}

func NewManager() *Manager {
	ttl := 3600
	if v := os.Getenv("SESSION_TTL_SECONDS"); v != "" {
		if n, e := strconv.Atoi(v); e == nil && n > 0 {
			ttl = n
		}
	}
	return &Manager{ss: make(map[string]*Session), ttl: time.Duration(ttl) * time.Second}
}

// Create: 新建会话并登记
func (m *Manager) Create(planID int64, geolevelID int64, extent [4]float64) *Session {
	s := New(uuid.NewString(), planID, geolevelID, extent)
	m.mu.Lock()
	m.ss[s.ID] = s
	n := len(m.ss)
	m.mu.Unlock()
	metrics.SessionsCreatedTotal.Inc()
	metrics.SessionsActive.Set(float64(n))
	logger.L().Info("session_created", "session", s.ID, "plan_id", planID, "geolevel_id", geolevelID, "active", n)
	return s
}

// Get: 按 id 取会话；不存在返回 nil
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ss[id]
}

// Start: 启动过期回收循环；ctx 取消时停止
func (m *Manager) Start(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.sweep()
			}
		}
	}()
}

func (m *Manager) sweep() {
	cutoff := time.Now().Add(-m.ttl)
	m.mu.Lock()
	removed := 0
	for id, s := range m.ss {
		if s.LastSeen().Before(cutoff) {
			delete(m.ss, id)
			removed++
		}
	}
	n := len(m.ss)
	m.mu.Unlock()
	if removed > 0 {
		metrics.SessionsActive.Set(float64(n))
		logger.L().Info("session_sweep", "removed", removed, "active", n)
	}
}
