// 包 session：编辑会话核心——工具状态机与圈选缓冲区
// 背景：浏览器端地图编辑器的交互状态收敛到服务端会话对象统一管理，
// 避免自由漂移的全局可变状态；任意时刻恰有一个激活工具。
package session

import (
	"errors"
	"sync"
	"time"

	"district-api/internal/logger"
	"district-api/internal/sources"
)

// Tool: 交互模式。navigate 为初始态；assign 工具激活时保留缓冲区并记录前一工具。
type Tool string

const (
	ToolNavigate Tool = "navigate"
	ToolPoint    Tool = "point"
	ToolBox      Tool = "box"
	ToolPolygon  Tool = "polygon"
	ToolAssign   Tool = "assign"
)

// ParseTool: 文本到工具的映射；未知值返回 false
func ParseTool(s string) (Tool, bool) {
	switch Tool(s) {
	case ToolNavigate, ToolPoint, ToolBox, ToolPolygon, ToolAssign:
		return Tool(s), true
	}
	return "", false
}

// Selecting: 该工具是否向缓冲区写入圈选结果
func (t Tool) Selecting() bool {
	return t == ToolPoint || t == ToolBox || t == ToolPolygon
}

var (
	ErrAssignInFlight     = errors.New("assignment already in flight")
	ErrAssignToolInactive = errors.New("assign tool is not active")
	ErrNotSelecting       = errors.New("active tool does not select")
	ErrEmptySelection     = errors.New("selection buffer is empty")
)

// Session: 单个编辑会话的全部交互状态
// 约束：所有读写走互斥锁；selGen 作为圈选查询的代计数，工具切换或新查询
// 都会使在途响应作废，杜绝旧响应覆盖新选择的竞态。
type Session struct {
	ID         string
	PlanID     int64
	mu         sync.Mutex
	active     Tool
	prev       Tool
	geolevelID int64
	buffer     *Buffer
	committed  bool
	busy       bool
	selGen     uint64
	renderGen  uint64
	extent     [4]float64
	createdAt  time.Time
	lastSeen   time.Time
}

func New(id string, planID int64, geolevelID int64, extent [4]float64) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		PlanID:     planID,
		active:     ToolNavigate,
		prev:       ToolNavigate,
		geolevelID: geolevelID,
		buffer:     NewBuffer(),
		extent:     extent,
		createdAt:  now,
		lastSeen:   now,
	}
}

// ActivateTool: 切换激活工具
// 背景：除 assign 外的任何激活都先完成去激活副作用并清空缓冲区；
// 激活 assign 则记录前一工具以便指派完成后恢复。
// 约束：重复激活当前工具同样清空缓冲区（与观察到的点击处理器行为一致，
// 决策记录见 DESIGN.md）；指派在途期间拒绝切换。
func (s *Session) ActivateTool(t Tool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	if s.busy {
		return ErrAssignInFlight
	}
	s.selGen++ // 在途圈选响应作废
	if t == ToolAssign {
		if s.active != ToolAssign {
			s.prev = s.active
		}
		s.active = ToolAssign
		logger.L().Debug("tool_activated", "session", s.ID, "tool", t, "prev", s.prev)
		return nil
	}
	s.active = t
	s.committed = false
	s.buffer.Clear()
	s.renderGen++
	logger.L().Debug("tool_activated", "session", s.ID, "tool", t)
	return nil
}

// SetGeolevel: 切换工作层级；层级变化使当前选择失效
func (s *Session) SetGeolevel(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	if id == s.geolevelID {
		return
	}
	s.geolevelID = id
	s.selGen++
	s.buffer.Clear()
	s.committed = false
	s.renderGen++
}

// BeginSelect: 开始一次圈选查询，返回代计数
// 背景：调用方持 gen 发起要素查询，完成后用 ApplySelection 回写；
// 若期间发生了新查询或工具切换，回写会被丢弃。
func (s *Session) BeginSelect() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	if s.busy {
		return 0, ErrAssignInFlight
	}
	if !s.active.Selecting() {
		return 0, ErrNotSelecting
	}
	s.selGen++
	return s.selGen, nil
}

// ApplySelection: 将查询结果并入缓冲区；仅当代计数仍为最新时生效
// 返回 (加入数量, 是否被采纳)。
func (s *Session) ApplySelection(gen uint64, units []sources.Unit) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.selGen || !s.active.Selecting() {
		return 0, false
	}
	added := 0
	for _, u := range units {
		if s.buffer.Add(u) {
			added++
		}
	}
	if added > 0 {
		s.renderGen++
	}
	return added, true
}

// Deselect: 从缓冲区移除指定单元（点选再次点击的语义）
func (s *Session) Deselect(ids []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	if s.busy {
		return 0, ErrAssignInFlight
	}
	if !s.active.Selecting() {
		return 0, ErrNotSelecting
	}
	removed := 0
	for _, id := range ids {
		if s.buffer.Remove(id) {
			removed++
		}
	}
	if removed > 0 {
		s.selGen++
		s.renderGen++
	}
	return removed, nil
}

// BeginAssign: 进入指派在途态并取缓冲区快照
// 约束：要求 assign 工具已激活；同会话同时最多一笔指派在途，
// 重叠请求直接拒绝而非排队。
func (s *Session) BeginAssign() ([]sources.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	if s.active != ToolAssign {
		return nil, ErrAssignToolInactive
	}
	if s.busy {
		return nil, ErrAssignInFlight
	}
	if s.buffer.Len() == 0 {
		return nil, ErrEmptySelection
	}
	s.busy = true
	s.committed = false
	return s.buffer.Units(), nil
}

// FinishAssign: 结束在途态
// 背景：成功时恢复 assign 前的工具并把高亮翻成“已提交”样式——缓冲区
// 此刻不清空，由随后的图层重载完成事件（LoadEnd）清空；两步清除是
// 刻意保留的行为，用户会短暂看到提交中的选择高亮。失败时工具停留在
// assign、缓冲区原样保留，便于用户手工重试。
func (s *Session) FinishAssign(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if !ok {
		logger.L().Debug("assign_finished", "session", s.ID, "ok", false)
		return
	}
	s.committed = true
	s.active = s.prev
	s.renderGen++
	logger.L().Debug("assign_finished", "session", s.ID, "ok", true, "restored_tool", s.active)
}

// LoadEnd: 图层重载完成；清空已提交的选择
func (s *Session) LoadEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	if !s.committed {
		return
	}
	s.committed = false
	s.buffer.Clear()
	s.renderGen++
	logger.L().Debug("layer_loadend", "session", s.ID)
}

// State: 对外只读视图，驱动前端高亮与工具条
type State struct {
	ID         string         `json:"id"`
	PlanID     int64          `json:"plan_id"`
	ActiveTool Tool           `json:"active_tool"`
	GeolevelID int64          `json:"geolevel_id"`
	Units      []sources.Unit `json:"units"`
	Committed  bool           `json:"committed"`
	Busy       bool           `json:"busy"`
	RenderGen  uint64         `json:"render_gen"`
	Extent     [4]float64     `json:"extent"`
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		ID:         s.ID,
		PlanID:     s.PlanID,
		ActiveTool: s.active,
		GeolevelID: s.geolevelID,
		Units:      s.buffer.Units(),
		Committed:  s.committed,
		Busy:       s.busy,
		RenderGen:  s.renderGen,
		Extent:     s.extent,
	}
}

// GeolevelID: 会话当前工作层级
func (s *Session) GeolevelID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geolevelID
}

// LastSeen: 最近一次交互时间，供过期回收
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
