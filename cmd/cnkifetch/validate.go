package main

import (
	"fmt"
	"strings"

	"github.com/RecoveryAshes/cnkifetch/internal/models"
)

// ValidateFlags 验证命令行标志
func ValidateFlags(
	keyword string,
	termFile string,
	count int,
	docType string,
	concurrency int,
	retryTimes int,
) error {
	// 验证检索词
	if strings.TrimSpace(keyword) == "" && termFile == "" {
		return fmt.Errorf("必须指定检索关键词 (-k) 或检索词文件 (-f)")
	}
	if keyword != "" && termFile != "" {
		return fmt.Errorf("-k 与 -f 不能同时使用")
	}

	// 验证数量
	if count < 1 || count > 500 {
		return fmt.Errorf("下载数量必须在1-500之间,当前值: %d", count)
	}

	// 验证文献类型
	if _, err := models.ParseCategory(docType); err != nil {
		return fmt.Errorf("无效的文献类型: %s (有效值: %s)", docType, categoryNames())
	}

	// 验证并发数
	if concurrency < 1 || concurrency > 10 {
		return fmt.Errorf("并发数必须在1-10之间,当前值: %d", concurrency)
	}

	// 验证重试次数
	if retryTimes < 0 || retryTimes > 10 {
		return fmt.Errorf("重试次数必须在0-10之间,当前值: %d", retryTimes)
	}

	return nil
}

func categoryNames() string {
	names := make([]string, 0, len(models.AllCategories))
	for _, c := range models.AllCategories {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
