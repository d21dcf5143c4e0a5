package storage

import "time"

// SessionCheckpoint 保存一个会话（session）最近一次的 AgentState 快照。
//
// 每个会话只保留一行：每执行完一个图节点就整行覆盖，因此恢复时总能拿到最近一致的状态。
// 快照本身以 JSON 存放，表结构不感知 AgentState 的字段，便于状态结构演进。
type SessionCheckpoint struct {
	// SessionID 为会话标识（通常是 UUID），即主键。
	SessionID string `gorm:"primaryKey;size:128"`
	// Phase 冗余保存快照所处阶段（planning/executing/synthesizing/done），便于列表展示与筛选。
	Phase string `gorm:"size:32;index"`
	// State 为序列化后的 AgentState。
	State []byte `gorm:"type:blob;not null"`
	// CreatedAt 为会话首次写入时间；UpdatedAt 为最近一次覆盖时间。
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime;index"`
}

// AuditRecord 记录一次工具调用及其结果，用于审计、追溯与后续分析。
//
// 一条审计记录对应 Executor 执行的一个计划步骤（例如 marketing_expert、web_searcher）。
// 入参是自然语言查询，输出是工具返回的自由文本，统一以字符串存放。
type AuditRecord struct {
	// ID 为自增主键（内部使用）。
	ID uint64 `gorm:"primaryKey"`
	// TraceID 串联一次会话，取值为 session id。
	TraceID string `gorm:"size:64;index"`
	// Action 为工具名。
	Action string `gorm:"size:128;not null;index"`
	// ParamsJSON 存放工具入参（查询文本）。
	ParamsJSON string `gorm:"type:text"`
	// ResultJSON 存放工具输出（可能被截断）。
	ResultJSON string `gorm:"type:text"`
	// Status 表示执行状态（running/success/failed）。
	Status string `gorm:"size:32;not null;index"`
	// ErrorMessage 存放失败时的错误信息。
	ErrorMessage string `gorm:"type:text"`
	// StartedAt/FinishedAt 表示调用起止时间，耗时为 FinishedAt-StartedAt。
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time `gorm:"index"`
	// CreatedAt 为记录写入数据库的时间，默认自动填充。
	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"`
}
