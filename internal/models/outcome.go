package models

// Status 单篇文献的最终状态
type Status string

const (
	StatusSucceeded Status = "succeeded" // 成功
	StatusSkipped   Status = "skipped"   // 跳过(付费/权限)
	StatusFailed    Status = "failed"    // 失败
)

// Label 中文标签
func (s Status) Label() string {
	switch s {
	case StatusSucceeded:
		return "成功"
	case StatusSkipped:
		return "跳过"
	case StatusFailed:
		return "失败"
	default:
		return string(s)
	}
}

// Outcome 单篇文献的下载结果,创建后不可修改
// SavedPath 仅在成功时存在, Reason 仅在跳过/失败时存在
type Outcome struct {
	Record         Record  `json:"record"`
	Status         Status  `json:"status"`
	SavedPath      string  `json:"saved_path,omitempty"`
	Reason         string  `json:"reason,omitempty"`
	Kind           Kind    `json:"kind,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Succeeded 创建成功结果
func Succeeded(record Record, path string, elapsed float64) Outcome {
	return Outcome{Record: record, Status: StatusSucceeded, SavedPath: path, ElapsedSeconds: elapsed}
}

// Skipped 创建跳过结果
func Skipped(record Record, reason string, elapsed float64) Outcome {
	return Outcome{Record: record, Status: StatusSkipped, Reason: reason, Kind: KindPermissionRequired, ElapsedSeconds: elapsed}
}

// Failed 创建失败结果
func Failed(record Record, kind Kind, reason string, elapsed float64) Outcome {
	if kind == "" {
		kind = KindUnclassified
	}
	return Outcome{Record: record, Status: StatusFailed, Reason: reason, Kind: kind, ElapsedSeconds: elapsed}
}
