package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/disk"
)

// ValidateDestination 检查保存目录: 不存在时创建,必须可写,剩余空间不少于minFreeMB
func ValidateDestination(dir string, minFreeMB int) error {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("无法创建目录 %s: %w", dir, err)
		}
	case err != nil:
		return fmt.Errorf("无法访问目录 %s: %w", dir, err)
	case !info.IsDir():
		return fmt.Errorf("路径不是一个目录: %s", dir)
	}

	probe := filepath.Join(dir, ".write_test_"+uuid.NewString())
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("没有写入权限: %w", err)
	}
	f.Close()
	os.Remove(probe)

	if minFreeMB <= 0 {
		return nil
	}
	usage, err := disk.Usage(dir)
	if err != nil {
		Warnf("⚠️  无法获取磁盘空间: %v", err)
		return nil
	}
	if free := usage.Free / 1024 / 1024; free < uint64(minFreeMB) {
		return fmt.Errorf("磁盘空间不足: 剩余 %dMB, 至少需要 %dMB", free, minFreeMB)
	}
	return nil
}
