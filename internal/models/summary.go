package models

import (
	"time"
)

// RunSummary 一次运行的汇总
// 只能通过 AddOutcome 追加结果,计数始终与 Outcomes 一致
type RunSummary struct {
	RunID          string             `json:"run_id"`
	Request        AcquisitionRequest `json:"request"`
	Total          int                `json:"total"`
	SucceededCount int                `json:"succeeded_count"`
	SkippedCount   int                `json:"skipped_count"`
	FailedCount    int                `json:"failed_count"`
	Outcomes       []Outcome          `json:"outcomes"`
	SavedFiles     []string           `json:"saved_files"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
}

// NewRunSummary 创建汇总
func NewRunSummary(req AcquisitionRequest) *RunSummary {
	return &RunSummary{
		RunID:      generateID(),
		Request:    req,
		Outcomes:   make([]Outcome, 0, req.DesiredCount),
		SavedFiles: make([]string, 0, req.DesiredCount),
		StartedAt:  time.Now(),
	}
}

// AddOutcome 追加一个结果并更新计数
func (s *RunSummary) AddOutcome(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	s.Total = len(s.Outcomes)

	switch o.Status {
	case StatusSucceeded:
		s.SucceededCount++
		s.SavedFiles = append(s.SavedFiles, o.SavedPath)
	case StatusSkipped:
		s.SkippedCount++
	default:
		s.FailedCount++
	}
}

// Finish 记录结束时间
func (s *RunSummary) Finish() {
	s.FinishedAt = time.Now()
}

// Consistent 检查计数是否与结果列表一致
func (s *RunSummary) Consistent() bool {
	return s.Total == len(s.Outcomes) &&
		s.SucceededCount+s.SkippedCount+s.FailedCount == s.Total &&
		len(s.SavedFiles) == s.SucceededCount
}

// SuccessRate 成功率(百分比)
func (s *RunSummary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.SucceededCount) / float64(s.Total) * 100
}

// Elapsed 运行耗时,未结束时以当前时间计算
func (s *RunSummary) Elapsed() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := s.FinishedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartedAt)
}

// Speed 平均速度(篇/分钟),只统计成功的
func (s *RunSummary) Speed() float64 {
	minutes := s.Elapsed().Minutes()
	if minutes <= 0 || s.SucceededCount == 0 {
		return 0
	}
	return float64(s.SucceededCount) / minutes
}

// NotSucceeded 返回所有未成功的结果
func (s *RunSummary) NotSucceeded() []Outcome {
	var out []Outcome
	for _, o := range s.Outcomes {
		if o.Status != StatusSucceeded {
			out = append(out, o)
		}
	}
	return out
}
