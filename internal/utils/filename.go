package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DefaultMaxFilenameLength 文件名(不含扩展名)最大长度
const DefaultMaxFilenameLength = 200

// maxCollisions 超过后改用时间戳后缀
const maxCollisions = 10000

var (
	illegalFilenameChars = strings.NewReplacer(
		`\`, "_", "/", "_", ":", "_", "*", "_", "?", "_", `"`, "_", "<", "_", ">", "_", "|", "_",
		"：", "_", "、", "_", "，", "_", "。", "_", "（", "_", "）", "_", "《", "_", "》", "_",
	)
	repeatedSeparators = regexp.MustCompile(`[_\-.]{2,}`)
)

// SanitizeFilename 清理文件名,返回不含扩展名的部分
func SanitizeFilename(filename string, maxLength int) string {
	return SanitizeName(strings.TrimSuffix(filename, filepath.Ext(filename)), maxLength)
}

// SanitizeName 把任意文本清理为可用的文件或目录名,不识别扩展名
//
// 非法字符和常见全角标点替换为下划线,连续的分隔符合并,
// 超过maxLength时截断为 maxLength-3 个字符加 "...",结果为空时返回 "unnamed"。
func SanitizeName(name string, maxLength int) string {
	if maxLength <= 3 {
		maxLength = DefaultMaxFilenameLength
	}

	name = illegalFilenameChars.Replace(name)
	name = repeatedSeparators.ReplaceAllString(name, "_")
	name = strings.Join(strings.Fields(name), "_")
	name = strings.Trim(name, "_.- ")

	if runes := []rune(name); len(runes) > maxLength {
		name = string(runes[:maxLength-3]) + "..."
	}
	if name == "" {
		name = "unnamed"
	}
	return name
}

// TermDirNames 多检索词模式下每个检索词的子目录名,互不相同
func TermDirNames(terms []string) []string {
	used := make(map[string]bool, len(terms))
	names := make([]string, len(terms))
	for i, term := range terms {
		base := SanitizeName(term, DefaultMaxFilenameLength)
		name := base
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[name] = true
		names[i] = name
	}
	return names
}

// UniqueFilename 返回exists判断为不存在的文件名
// 依次尝试 name.ext, name_1.ext, name_2.ext ...,冲突过多时使用时间戳后缀
func UniqueFilename(filename string, exists func(string) bool) string {
	if !exists(filename) {
		return filename
	}

	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	for i := 1; i <= maxCollisions; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if !exists(candidate) {
			return candidate
		}
	}
	return fmt.Sprintf("%s_%s%s", stem, time.Now().Format("20060102_150405"), ext)
}

// ReserveUniquePath 在dir中创建一个不重名的空文件并返回路径
// 并发的下载任务各自占位,保存时直接覆盖自己的占位文件
func ReserveUniquePath(dir, filename string) (string, error) {
	exists := func(name string) bool {
		_, err := os.Lstat(filepath.Join(dir, name))
		return err == nil
	}

	for attempt := 0; attempt < 3; attempt++ {
		path := filepath.Join(dir, UniqueFilename(filename, exists))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			f.Close()
			return path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("创建文件失败: %w", err)
		}
	}
	return "", fmt.Errorf("无法为 %s 分配文件名", filename)
}
