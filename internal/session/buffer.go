package session

import "district-api/internal/sources"

// 文档注释：圈选缓冲区
// 背景：保存当前高亮待指派的地理单元集合；按 id 去重、保留加入顺序（仅用于展示）。
// 约束：非并发安全，由 Session 的互斥锁保护；任何变更都应伴随渲染代计数递增，
// 高亮图层按“全删再全加”的方式重绘。
type Buffer struct {
	order []sources.Unit
	byID  map[int64]struct{}
}

func NewBuffer() *Buffer {
	return &Buffer{byID: make(map[int64]struct{})}
}

// Add: 追加单元；同 id 已存在时为幂等空操作。返回是否发生变更。
func (b *Buffer) Add(u sources.Unit) bool {
	if _, ok := b.byID[u.ID]; ok {
		return false
	}
	b.byID[u.ID] = struct{}{}
	b.order = append(b.order, u)
	return true
}

// Remove: 按 id 删除；不存在时为空操作。返回是否发生变更。
func (b *Buffer) Remove(id int64) bool {
	if _, ok := b.byID[id]; !ok {
		return false
	}
	delete(b.byID, id)
	for i, u := range b.order {
		if u.ID == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return true
}

// Contains: id 是否在缓冲区内
func (b *Buffer) Contains(id int64) bool {
	_, ok := b.byID[id]
	return ok
}

// Clear: 清空缓冲区；工具切换、图层重载完成后调用
func (b *Buffer) Clear() {
	if len(b.order) == 0 {
		return
	}
	b.order = nil
	b.byID = make(map[int64]struct{})
}

func (b *Buffer) Len() int { return len(b.order) }

// Units: 返回只读快照（拷贝），供高亮图层与指派请求构造使用
func (b *Buffer) Units() []sources.Unit {
	out := make([]sources.Unit, len(b.order))
	copy(out, b.order)
	return out
}

// IDs: 缓冲区内单元 id 快照，按加入顺序
func (b *Buffer) IDs() []int64 {
	out := make([]int64, len(b.order))
	for i, u := range b.order {
		out[i] = u.ID
	}
	return out
}
