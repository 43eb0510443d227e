package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/RecoveryAshes/cnkifetch/internal/models"
)

// Reporter 报告生成器
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器,报告写入 outputDir/reports
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// GenerateReport 保存JSON报告,返回文件路径
func (r *Reporter) GenerateReport(summary *models.RunSummary, strategyVersion string, cfg models.AcquireConfig) (string, error) {
	reportsDir := filepath.Join(r.outputDir, "reports")
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	data, err := models.NewRunReport(summary, strategyVersion, cfg).ToJSON()
	if err != nil {
		return "", fmt.Errorf("序列化JSON失败: %w", err)
	}

	path := filepath.Join(reportsDir, "run_"+summary.RunID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return path, nil
}

// FormatSummary 生成文本报告
// 成功/跳过/失败分别计数,列出所有未成功文献的原因
func FormatSummary(s *models.RunSummary) string {
	var b strings.Builder
	line := strings.Repeat("=", 60)

	b.WriteString(line + "\n")
	b.WriteString("📊 下载报告\n")
	b.WriteString(line + "\n")
	fmt.Fprintf(&b, "检索词: %s\n", s.Request.SearchTerm)
	fmt.Fprintf(&b, "文献类型: %s\n", s.Request.Category)
	fmt.Fprintf(&b, "保存目录: %s\n", s.Request.DestinationFolder)
	fmt.Fprintf(&b, "总计: %d 篇\n", s.Total)
	fmt.Fprintf(&b, "✅ 成功: %d 篇\n", s.SucceededCount)
	fmt.Fprintf(&b, "⏭️  跳过: %d 篇\n", s.SkippedCount)
	fmt.Fprintf(&b, "❌ 失败: %d 篇\n", s.FailedCount)
	fmt.Fprintf(&b, "成功率: %.1f%%\n", s.SuccessRate())
	fmt.Fprintf(&b, "耗时: %s\n", FormatDuration(s.Elapsed()))
	fmt.Fprintf(&b, "速度: %.2f 篇/分钟\n", s.Speed())

	if len(s.SavedFiles) > 0 {
		b.WriteString("\n已保存的文件:\n")
		for _, f := range s.SavedFiles {
			fmt.Fprintf(&b, "  - %s\n", filepath.Base(f))
		}
	}

	if problems := s.NotSucceeded(); len(problems) > 0 {
		b.WriteString("\n未成功的文献:\n")
		for _, o := range problems {
			fmt.Fprintf(&b, "  [%s] %s: %s\n", o.Status.Label(), o.Record.ShortTitle(), o.Reason)
		}
	}

	b.WriteString(line + "\n")
	return b.String()
}

// FormatDuration 格式化耗时
func FormatDuration(d time.Duration) string {
	seconds := d.Seconds()
	switch {
	case seconds < 60:
		return fmt.Sprintf("%.1f秒", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%d分%d秒", int(seconds)/60, int(seconds)%60)
	default:
		return fmt.Sprintf("%d小时%d分", int(seconds)/3600, int(seconds)%3600/60)
	}
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
