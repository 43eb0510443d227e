package utils

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/RecoveryAshes/cnkifetch/internal/models"
)

// SaveErrorRecord 把错误记录写入 logDir/error_YYYYMMDD_HHMMSS.json
// 同一秒内的多条记录依次加 _1, _2 后缀,不会互相覆盖
func SaveErrorRecord(record models.ErrorRecord, logDir string) (string, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("创建日志目录失败: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化错误记录失败: %w", err)
	}

	path, err := ReserveUniquePath(logDir, "error_"+record.Timestamp.Format("20060102_150405")+".json")
	if err != nil {
		return "", fmt.Errorf("分配错误记录文件名失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("写入错误记录失败: %w", err)
	}
	return path, nil
}
