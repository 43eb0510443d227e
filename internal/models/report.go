package models

import (
	"encoding/json"
	"time"
)

// RunReport 运行报告(JSON)
type RunReport struct {
	// 任务信息
	RunID   string             `json:"run_id"`
	Request AcquisitionRequest `json:"request"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 统计信息
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	Skipped     int     `json:"skipped"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"` // 百分比
	Speed       float64 `json:"speed"`        // 篇/分钟

	// 文件列表
	SavedFiles []string       `json:"saved_files"`
	Problems   []ProblemEntry `json:"problems"` // 跳过与失败

	// 配置快照
	StrategyVersion string        `json:"strategy_version"`
	Config          AcquireConfig `json:"config"`
}

// ProblemEntry 未成功的文献
type ProblemEntry struct {
	Title  string `json:"title"`
	Status Status `json:"status"`
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason"`
}

// NewRunReport 根据汇总生成报告
func NewRunReport(s *RunSummary, strategyVersion string, cfg AcquireConfig) *RunReport {
	r := &RunReport{
		RunID:           s.RunID,
		Request:         s.Request,
		StartTime:       s.StartedAt,
		EndTime:         s.FinishedAt,
		Duration:        s.Elapsed().Seconds(),
		Total:           s.Total,
		Succeeded:       s.SucceededCount,
		Skipped:         s.SkippedCount,
		Failed:          s.FailedCount,
		SuccessRate:     s.SuccessRate(),
		Speed:           s.Speed(),
		SavedFiles:      append([]string{}, s.SavedFiles...),
		Problems:        make([]ProblemEntry, 0),
		StrategyVersion: strategyVersion,
		Config:          cfg,
	}
	for _, o := range s.NotSucceeded() {
		r.Problems = append(r.Problems, ProblemEntry{
			Title:  o.Record.Title,
			Status: o.Status,
			Kind:   o.Kind,
			Reason: o.Reason,
		})
	}
	return r
}

// ToJSON 序列化为JSON
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
