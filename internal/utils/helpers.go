package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadTermsFromFile 从文件中读取检索词,每行一个
func ReadTermsFromFile(filepath string) ([]string, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("打开检索词文件失败: %w", err)
	}
	defer file.Close()

	terms := make([]string, 0)
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// 跳过空行和注释行
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		terms = append(terms, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取检索词文件失败: %w", err)
	}

	if len(terms) == 0 {
		return nil, fmt.Errorf("检索词文件中没有有效的检索词")
	}

	Infof("从文件加载了 %d 个检索词", len(terms))
	return terms, nil
}
