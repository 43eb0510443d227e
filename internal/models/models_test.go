package models

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"有效的HTTP URL", "http://example.com", false},
		{"有效的HTTPS URL", "https://kc.cnki.net/", false},
		{"带路径的URL", "https://kns.cnki.net/kcms/detail", false},
		{"无效的协议", "ftp://example.com", true},
		{"无效的URL", "not a url", true},
		{"空URL", "", true},
		{"无协议", "example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewAcquisitionRequest(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		term     string
		count    int
		category DocumentCategory
		dest     string
		wantErr  bool
		wantKind Kind
	}{
		{"有效请求", "人工智能", 5, CategoryDissertation, dir, false, ""},
		{"数量为0", "人工智能", 0, CategoryJournal, dir, true, KindUnclassified},
		{"数量为负", "人工智能", -3, CategoryJournal, dir, true, KindUnclassified},
		{"关键词为空", "  ", 3, CategoryJournal, dir, true, KindUnclassified},
		{"目录为空", "机器学习", 3, CategoryJournal, "", true, KindUnclassified},
		{"未知文献类型", "机器学习", 3, DocumentCategory("博客"), dir, true, KindCategoryNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewAcquisitionRequest(tt.term, tt.count, tt.category, tt.dest)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewAcquisitionRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if KindOf(err) != tt.wantKind {
					t.Errorf("KindOf() = %v, want %v", KindOf(err), tt.wantKind)
				}
				return
			}
			if !filepath.IsAbs(req.DestinationFolder) {
				t.Errorf("保存目录应为绝对路径: %s", req.DestinationFolder)
			}
		})
	}
}

func TestParseCategory(t *testing.T) {
	for _, c := range AllCategories {
		got, err := ParseCategory(" " + string(c) + " ")
		if err != nil || got != c {
			t.Errorf("ParseCategory(%q) = %v, %v", c, got, err)
		}
	}

	if _, err := ParseCategory("论坛"); !IsKind(err, KindCategoryNotFound) {
		t.Errorf("未知类型应返回 CategoryNotFound, 实际: %v", err)
	}
}

func TestRunSummary_AddOutcome(t *testing.T) {
	req := AcquisitionRequest{SearchTerm: "人工智能", DesiredCount: 4, Category: CategoryJournal, DestinationFolder: "/tmp/x"}
	s := NewRunSummary(req)

	s.AddOutcome(Succeeded(Record{Title: "a"}, "/tmp/x/a.pdf", 1.2))
	s.AddOutcome(Skipped(Record{Title: "b"}, "需要付费权限", 0.5))
	s.AddOutcome(Failed(Record{Title: "c"}, KindDownloadControlMissing, "未找到下载按钮", 0.7))
	s.AddOutcome(Succeeded(Record{Title: "d"}, "/tmp/x/d.pdf", 2.0))
	s.Finish()

	if s.Total != 4 || s.SucceededCount != 2 || s.SkippedCount != 1 || s.FailedCount != 1 {
		t.Fatalf("计数错误: %+v", s)
	}
	if !s.Consistent() {
		t.Error("汇总计数应与结果列表一致")
	}
	if len(s.SavedFiles) != 2 || s.SavedFiles[1] != "/tmp/x/d.pdf" {
		t.Errorf("保存文件列表错误: %v", s.SavedFiles)
	}
	if got := s.SuccessRate(); got != 50 {
		t.Errorf("SuccessRate() = %v, want 50", got)
	}
	if got := len(s.NotSucceeded()); got != 2 {
		t.Errorf("NotSucceeded() = %d, want 2", got)
	}
}

func TestRunSummary_Speed(t *testing.T) {
	s := &RunSummary{StartedAt: time.Now().Add(-2 * time.Minute)}
	s.AddOutcome(Succeeded(Record{Title: "a"}, "a.pdf", 1))
	s.AddOutcome(Succeeded(Record{Title: "b"}, "b.pdf", 1))
	s.FinishedAt = s.StartedAt.Add(2 * time.Minute)

	if got := s.Speed(); got != 1 {
		t.Errorf("Speed() = %v, want 1", got)
	}

	empty := &RunSummary{}
	if empty.Speed() != 0 || empty.SuccessRate() != 0 {
		t.Error("空汇总的速度和成功率应为0")
	}
}

func TestAcquireError(t *testing.T) {
	base := errors.New("超时")
	err := fmt.Errorf("选择文献类型失败: %w", NewError(KindElementUnresolvable, "定位元素", base))

	if KindOf(err) != KindElementUnresolvable {
		t.Errorf("KindOf() = %v", KindOf(err))
	}
	if !errors.Is(err, base) {
		t.Error("应能通过errors.Is找到底层错误")
	}
	if KindOf(base) != KindUnclassified {
		t.Error("普通错误应归为 UnclassifiedFailure")
	}

	nested := NewError(KindNavigationTimeout, "外层", NewError(KindPermissionRequired, "内层", base))
	if !IsKind(nested, KindPermissionRequired) {
		t.Error("IsKind 应检查整个错误链")
	}
}

func TestAcquireConfig_Validate(t *testing.T) {
	cfg := DefaultAcquireConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("默认配置应有效: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *AcquireConfig)
	}{
		{"并发数为0", func(c *AcquireConfig) { c.Download.MaxConcurrent = 0 }},
		{"并发数过大", func(c *AcquireConfig) { c.Download.MaxConcurrent = 50 }},
		{"超时为0", func(c *AcquireConfig) { c.Timeouts.Selector = 0 }},
		{"重试为负", func(c *AcquireConfig) { c.Download.RetryTimes = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultAcquireConfig()
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("期望验证失败")
			}
		})
	}
}

func TestRunReport(t *testing.T) {
	s := NewRunSummary(AcquisitionRequest{SearchTerm: "量子", DesiredCount: 2, Category: CategoryPatent, DestinationFolder: "/d"})
	s.AddOutcome(Succeeded(Record{Title: "a"}, "/d/a.pdf", 1))
	s.AddOutcome(Failed(Record{Title: "b"}, "", "no detail page reachable", 0))
	s.Finish()

	r := NewRunReport(s, "cnki-2024.10", DefaultAcquireConfig())
	if r.Total != 2 || len(r.Problems) != 1 {
		t.Fatalf("报告内容错误: %+v", r)
	}
	if r.Problems[0].Kind != KindUnclassified {
		t.Errorf("空分类应默认为 UnclassifiedFailure, 实际: %v", r.Problems[0].Kind)
	}
	if _, err := r.ToJSON(); err != nil {
		t.Errorf("ToJSON() error = %v", err)
	}
}

func TestCliHeaders_Parse(t *testing.T) {
	h, err := CliHeaders{"Accept-Language: zh-CN", "X-Test:  1 "}.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if h.Get("X-Test") != "1" || h.Get("Accept-Language") != "zh-CN" {
		t.Errorf("解析结果错误: %v", h)
	}
	if _, err := (CliHeaders{"no-colon"}).Parse(); err == nil {
		t.Error("缺少冒号应报错")
	}
}
