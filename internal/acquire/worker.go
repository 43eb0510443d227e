package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/RecoveryAshes/cnkifetch/internal/browser"
	"github.com/RecoveryAshes/cnkifetch/internal/locator"
	"github.com/RecoveryAshes/cnkifetch/internal/models"
	"github.com/RecoveryAshes/cnkifetch/internal/utils"
)

// PermissionKeywords 错误信息中出现这些词时视为需要付费或登录
var PermissionKeywords = []string{"付费", "购买", "权限", "登录"}

// ReasonNoDetailPage 记录没有详情页地址时的失败原因
const ReasonNoDetailPage = "没有可访问的详情页 (no detail page reachable)"

// primaryExt 保存的文件统一使用的扩展名
const primaryExt = ".pdf"

// TabSource 下载阶段的标签页来源
type TabSource interface {
	Acquire(ctx context.Context) (browser.Page, error)
	Release(p browser.Page)
}

// WorkerConfig 下载配置
type WorkerConfig struct {
	Destination string // 保存目录
	Table       *locator.Table
	Acquire     models.AcquireConfig
}

// Worker 单篇文献的下载流程
// 每次下载从 TabSource 独占一个标签页,不使用会话的当前页
type Worker struct {
	tabs     TabSource
	cfg      WorkerConfig
	resolver *locator.Resolver
	stable   TrackerConfig
	logger   zerolog.Logger
}

// NewWorker 创建下载器
func NewWorker(tabs TabSource, cfg WorkerConfig, logger zerolog.Logger) *Worker {
	return &Worker{
		tabs:     tabs,
		cfg:      cfg,
		resolver: locator.New(locator.ConfigFrom(cfg.Acquire), locator.WithLogger(logger)),
		stable:   TrackerConfigFrom(cfg.Acquire),
		logger:   logger,
	}
}

// Acquire 下载一篇文献,任何错误都转换为结果,不会向上返回
//
// 技术性失败按 download.retry_times 重试,付费/权限提示直接跳过。
func (w *Worker) Acquire(ctx context.Context, record models.Record) (outcome models.Outcome) {
	start := time.Now()
	log := utils.WithRecord(w.logger, record)

	defer func() {
		if r := recover(); r != nil {
			outcome = models.Failed(record, models.KindUnclassified, fmt.Sprintf("下载过程异常: %v", r), time.Since(start).Seconds())
			log.Error().Str(utils.FieldCode, models.ErrorCodeRecordFailed).Msgf("❌ 下载过程异常: %v", r)
		}
	}()

	if record.DetailURL == "" {
		log.Warn().Msg("⚠️  " + ReasonNoDetailPage)
		return models.Failed(record, models.KindUnclassified, ReasonNoDetailPage, time.Since(start).Seconds())
	}

	attempts := 1 + w.cfg.Acquire.Download.RetryTimes
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			backoff := time.Duration(i) * models.Ms(w.cfg.Acquire.Waits.Recheck)
			log.Info().Int("attempt", i+1).Dur("backoff", backoff).Msg("重试下载")
			if err := sleep(ctx, backoff); err != nil {
				lastErr = err
				break
			}
		}

		path, err := w.attempt(ctx, record)
		if err == nil {
			log.Info().Str("path", path).Msg("✅ 下载成功")
			return models.Succeeded(record, path, time.Since(start).Seconds())
		}
		lastErr = err

		if ClassifyFailure(err) == models.KindPermissionRequired {
			log.Warn().Err(err).Msg("⏭️  需要付费或权限,跳过")
			return models.Skipped(record, err.Error(), time.Since(start).Seconds())
		}
		if ctx.Err() != nil {
			break
		}
		log.Debug().Err(err).Int("attempt", i+1).Msg("下载失败")
	}

	kind := ClassifyFailure(lastErr)
	log.Error().Err(lastErr).Str(utils.FieldCode, models.ErrorCodeRecordFailed).Str("kind", string(kind)).Msg("❌ 下载失败")
	return models.Failed(record, kind, lastErr.Error(), time.Since(start).Seconds())
}

// attempt 一次完整的下载: 详情页 → 定位按钮 → 触发下载 → 重命名保存
func (w *Worker) attempt(ctx context.Context, record models.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	page, err := w.tabs.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("获取标签页失败: %w", err)
	}
	defer w.tabs.Release(page)

	timeouts := w.cfg.Acquire.Timeouts
	w.logger.Debug().Str("url", utils.RedactURL(record.DetailURL)).Msg("打开详情页")
	if err := page.Navigate(record.DetailURL, models.Ms(timeouts.PageLoad)); err != nil {
		return "", navigationError("打开详情页", err)
	}
	waitStable(page, w.stable, w.logger)

	button, format, err := w.locateDownload(ctx, page)
	if err != nil {
		return "", err
	}

	download, err := page.ExpectDownload(models.Ms(timeouts.Download), button.Click)
	if err != nil {
		return "", fmt.Errorf("%s下载失败: %w", format, err)
	}
	return w.save(record, download, format)
}

// locateDownload 先找PDF下载按钮,找不到再找CAJ
func (w *Worker) locateDownload(ctx context.Context, page browser.Page) (browser.Element, string, error) {
	timeout := models.Ms(w.cfg.Acquire.Timeouts.DownloadButton)
	candidates := []struct {
		format     string
		strategies []locator.Strategy
	}{
		{"PDF", w.cfg.Table.PDFDownload},
		{"CAJ", w.cfg.Table.CAJDownload},
	}

	for _, c := range candidates {
		if len(c.strategies) == 0 {
			continue
		}
		el, err := w.resolver.Resolve(ctx, page, locator.Target{
			Description:  c.format + "下载按钮",
			Strategies:   c.strategies,
			Timeout:      timeout,
			SkipRecovery: true,
		})
		if err == nil {
			return el, c.format, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
	}

	// 附带页面标题,付费或登录页面可以据此归类
	return nil, "", models.NewError(models.KindDownloadControlMissing, "定位下载按钮",
		fmt.Errorf("未找到下载按钮 (页面: %s)", page.Title()))
}

// save 把浏览器下载的临时文件移动到保存目录
// CAJ格式也使用 .pdf 扩展名保存
func (w *Worker) save(record models.Record, download *browser.Download, format string) (string, error) {
	name := download.SuggestedFilename
	if name == "" {
		name = record.Title + primaryExt
	}
	if format == "CAJ" || strings.EqualFold(filepath.Ext(name), ".caj") {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + primaryExt
	}
	name = utils.SanitizeFilename(name, w.cfg.Acquire.Download.MaxFilenameLength) + primaryExt

	path, err := utils.ReserveUniquePath(w.cfg.Destination, name)
	if err != nil {
		return "", err
	}
	if err := os.Rename(download.Path, path); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("保存文件失败: %w", err)
	}
	return path, nil
}

// ClassifyFailure 对错误分类
// 错误信息包含 PermissionKeywords 中任一词时为 PermissionRequired
func ClassifyFailure(err error) models.Kind {
	if err == nil {
		return ""
	}
	if models.IsKind(err, models.KindPermissionRequired) {
		return models.KindPermissionRequired
	}
	msg := err.Error()
	for _, kw := range PermissionKeywords {
		if strings.Contains(msg, kw) {
			return models.KindPermissionRequired
		}
	}
	if errors.Is(err, browser.ErrTimeout) || errors.Is(err, browser.ErrDownloadTimeout) {
		if models.KindOf(err) == models.KindUnclassified {
			return models.KindNavigationTimeout
		}
	}
	return models.KindOf(err)
}
