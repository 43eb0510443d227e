package main

import (
	"strings"
	"testing"
)

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name        string
		keyword     string
		termFile    string
		count       int
		docType     string
		concurrency int
		retry       int
		wantErr     string
	}{
		{"有效参数", "人工智能", "", 5, "学位论文", 1, 2, ""},
		{"检索词文件", "", "terms.txt", 10, "学术期刊", 3, 0, ""},
		{"缺少检索词", "  ", "", 5, "学位论文", 1, 2, "必须指定检索关键词"},
		{"同时指定", "人工智能", "terms.txt", 5, "学位论文", 1, 2, "不能同时使用"},
		{"数量为0", "人工智能", "", 0, "学位论文", 1, 2, "下载数量"},
		{"数量过大", "人工智能", "", 501, "学位论文", 1, 2, "下载数量"},
		{"未知文献类型", "人工智能", "", 5, "外文期刊", 1, 2, "无效的文献类型"},
		{"并发数过大", "人工智能", "", 5, "专利", 11, 2, "并发数"},
		{"重试次数为负", "人工智能", "", 5, "专利", 1, -1, "重试次数"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFlags(tt.keyword, tt.termFile, tt.count, tt.docType, tt.concurrency, tt.retry)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("期望无错误, 实际: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("期望错误包含 %q, 实际无错误", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("期望错误包含 %q, 实际: %v", tt.wantErr, err)
			}
		})
	}
}

func TestCategoryNames(t *testing.T) {
	names := categoryNames()
	for _, want := range []string{"学术期刊", "学位论文", "文库"} {
		if !strings.Contains(names, want) {
			t.Errorf("类型列表缺少 %s: %s", want, names)
		}
	}
}
