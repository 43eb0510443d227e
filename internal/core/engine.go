package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/RecoveryAshes/cnkifetch/internal/acquire"
	"github.com/RecoveryAshes/cnkifetch/internal/browser"
	"github.com/RecoveryAshes/cnkifetch/internal/locator"
	"github.com/RecoveryAshes/cnkifetch/internal/models"
	"github.com/RecoveryAshes/cnkifetch/internal/utils"
)

// StagingDirName 浏览器下载文件的暂存目录,位于保存目录下
const StagingDirName = ".partial"

// LauncherFactory 根据下载暂存目录创建浏览器启动器
type LauncherFactory func(downloadDir string) browser.Launcher

// EngineConfig 一次运行需要的全部配置
type EngineConfig struct {
	HomeURL  string
	Table    *locator.Table
	Acquire  models.AcquireConfig
	LogDir   string // 运行失败时错误记录的保存目录
	Resource *browser.ResourceMonitor
}

// Engine 运行协调器: 首页 → 文献类型 → 检索 → 提取 → 分批下载
type Engine struct {
	cfg         EngineConfig
	newLauncher LauncherFactory
	logger      zerolog.Logger
	onRecords   func(n int)
	onOutcome   func(models.Outcome)
}

// EngineOption 引擎选项
type EngineOption func(*Engine)

// WithEngineLogger 设置日志
func WithEngineLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithProgress 设置进度回调: 提取完成时回调记录数,每篇下载完成时回调结果
func WithProgress(onRecords func(n int), onOutcome func(models.Outcome)) EngineOption {
	return func(e *Engine) {
		e.onRecords = onRecords
		e.onOutcome = onOutcome
	}
}

// NewEngine 创建引擎
func NewEngine(cfg EngineConfig, newLauncher LauncherFactory, opts ...EngineOption) *Engine {
	if cfg.HomeURL == "" {
		cfg.HomeURL = acquire.KCBaseURL + "/"
	}
	e := &Engine{cfg: cfg, newLauncher: newLauncher, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run 执行一次完整的获取流程
//
// 浏览器会话在返回前总会关闭。准备阶段(启动/首页/文献类型/检索/提取)的错误
// 会写入错误记录并返回,此时 summary 为 nil;下载阶段单篇文献的失败只体现在结果中。
func (e *Engine) Run(ctx context.Context, req models.AcquisitionRequest) (summary *models.RunSummary, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := e.cfg.Acquire.Validate(); err != nil {
		return nil, err
	}
	if e.cfg.Table == nil {
		return nil, errors.New("未加载定位策略表")
	}
	if err := utils.ValidateDestination(req.DestinationFolder, e.cfg.Acquire.Download.MinFreeSpaceMB); err != nil {
		return nil, err
	}

	staging := filepath.Join(req.DestinationFolder, StagingDirName)
	if err := os.MkdirAll(staging, 0755); err != nil {
		return nil, fmt.Errorf("创建下载暂存目录失败: %w", err)
	}
	defer os.RemoveAll(staging)

	summary = models.NewRunSummary(req)
	log := utils.WithRun(e.logger, summary.RunID, req)
	log.Info().Int("count", req.DesiredCount).Str("dest", req.DestinationFolder).Msg("🚀 开始获取文献")

	session := acquire.NewSession(e.newLauncher(staging), acquire.SessionConfig{
		HomeURL:       e.cfg.HomeURL,
		Table:         e.cfg.Table,
		Acquire:       e.cfg.Acquire,
		ScreenshotDir: req.DestinationFolder,
	}, log)
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("⚠️  关闭浏览器会话失败")
		}
	}()

	records, err := e.prepare(ctx, session, req, log)
	if err != nil {
		e.persistFailure(log, summary.RunID, req, err)
		return nil, err
	}

	if e.onRecords != nil {
		e.onRecords(len(records))
	}
	if len(records) == 0 {
		log.Warn().Msg("⚠️  没有找到可下载的文献")
		summary.Finish()
		return summary, nil
	}

	limit := e.cfg.Acquire.Download.MaxConcurrent
	pool := browser.NewTabPool(session.Browser(), limit, e.cfg.Resource, log)
	defer pool.Close()

	worker := acquire.NewWorker(pool, acquire.WorkerConfig{
		Destination: req.DestinationFolder,
		Table:       e.cfg.Table,
		Acquire:     e.cfg.Acquire,
	}, log)

	scheduler := NewScheduler(models.Ms(e.cfg.Acquire.Waits.BatchCooldown), log)
	if e.onOutcome != nil {
		scheduler.OnOutcome(e.onOutcome)
	}
	for _, o := range scheduler.RunAll(ctx, records, worker, limit) {
		summary.AddOutcome(o)
	}
	summary.Finish()

	log.Info().
		Int("succeeded", summary.SucceededCount).
		Int("skipped", summary.SkippedCount).
		Int("failed", summary.FailedCount).
		Msg("✅ 获取完成")
	return summary, nil
}

// prepare 准备阶段,只有会话的当前页参与
func (e *Engine) prepare(ctx context.Context, session *acquire.Session, req models.AcquisitionRequest, log zerolog.Logger) ([]models.Record, error) {
	if err := session.Launch(ctx); err != nil {
		return nil, err
	}
	if err := session.NavigateHome(ctx); err != nil {
		return nil, err
	}
	if err := session.SelectCategory(ctx, req.Category); err != nil {
		return nil, err
	}
	if err := session.PerformSearch(ctx, req.SearchTerm); err != nil {
		return nil, err
	}
	return acquire.NewExtractor(session, log).CollectUpTo(ctx, req.DesiredCount)
}

// persistFailure 保存运行级错误记录,保存失败只记录日志
func (e *Engine) persistFailure(log zerolog.Logger, runID string, req models.AcquisitionRequest, runErr error) {
	log.Error().Err(runErr).Str(utils.FieldCode, models.ErrorCodeRunFailed).Msg("❌ 获取流程失败")
	if e.cfg.LogDir == "" {
		return
	}

	record := models.NewErrorRecord(models.ErrorCodeRunFailed, runErr).
		WithContext(utils.FieldRunID, runID).
		WithContext("search_term", req.SearchTerm).
		WithContext("category", string(req.Category)).
		WithContext("desired_count", req.DesiredCount).
		WithContext("destination", req.DestinationFolder)
	path, err := utils.SaveErrorRecord(record, e.cfg.LogDir)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️  保存错误记录失败")
		return
	}
	log.Info().Str("path", path).Msg("错误记录已保存")
}
