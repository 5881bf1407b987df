package api

// 文档注释：指派响应结构（对外）
// 背景：响应契约的最低要求是 success 布尔；version 供前端感知计划推进，
// message 仅在失败时携带原因。
// 约束：字段稳定；新增字段需评估兼容性与前端依赖。
type assignResult struct {
	Success bool   `json:"success"`
	Version int    `json:"version,omitempty"`
	Message string `json:"message,omitempty"`
}

// 文档注释：圈选响应结构
// 背景：applied 标记结果是否被会话采纳（代计数仍为最新）；被丢弃的过期
// 响应如实上报，前端据此决定是否重发。
type selectResult struct {
	Applied bool   `json:"applied"`
	Added   int    `json:"added"`
	Source  string `json:"source,omitempty"`
	Message string `json:"message,omitempty"`
}
