package spatialindex

import (
	"sync/atomic"
)

// 文档注释：动态索引包装器
// 背景：通过 atomic.Value 提供无锁读写切换（导入完成或管理端重建后换入新
// 快照），保障高并发查询路径不阻塞。
// 约束：Set 前 Get 返回 nil，调用方按未就绪处理。
type Dynamic struct{ v atomic.Value }

// Get: 原子读取当前索引快照，未设置时返回 nil
func (d *Dynamic) Get() *Index {
	x := d.v.Load()
	if x == nil {
		return nil
	}
	return x.(*Index)
}

// Set: 换入新快照；对后续查询立即生效
// WARNING: ix 为 nil 会 panic，应在上层保证非空
func (d *Dynamic) Set(ix *Index) { d.v.Store(ix) }
