package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/RecoveryAshes/cnkifetch/internal/models"
	"github.com/RecoveryAshes/cnkifetch/internal/utils"
)

// Acquirer 下载单篇文献,所有错误都应转换为结果
type Acquirer interface {
	Acquire(ctx context.Context, record models.Record) models.Outcome
}

// AcquirerFunc 函数适配器
type AcquirerFunc func(ctx context.Context, record models.Record) models.Outcome

// Acquire 实现 Acquirer
func (f AcquirerFunc) Acquire(ctx context.Context, record models.Record) models.Outcome {
	return f(ctx, record)
}

// Scheduler 分批并发下载
type Scheduler struct {
	cooldown  time.Duration
	logger    zerolog.Logger
	onOutcome func(models.Outcome)
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewScheduler 创建调度器,cooldown 为两批之间的间隔
func NewScheduler(cooldown time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cooldown: cooldown,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// OnOutcome 每篇文献完成时回调,用于进度显示
// 回调可能在多个goroutine中同时调用
func (s *Scheduler) OnOutcome(fn func(models.Outcome)) {
	s.onOutcome = fn
}

// RunAll 按 limit 分批下载,返回与 records 顺序一致的结果
//
// 同一批内并发执行,批与批之间严格串行并等待 cooldown。
// 每次调用 worker 前还要获取信号量,同时进行的下载数不会超过 limit。
func (s *Scheduler) RunAll(ctx context.Context, records []models.Record, worker Acquirer, limit int) []models.Outcome {
	if limit < 1 {
		limit = 1
	}
	outcomes := make([]models.Outcome, len(records))
	gate := semaphore.NewWeighted(int64(limit))
	batches := (len(records) + limit - 1) / limit

	for b := 0; b < batches; b++ {
		start := b * limit
		end := min(start+limit, len(records))
		log := s.logger.With().Int("batch", b+1).Int("batches", batches).Logger()
		log.Info().Msgf("📦 处理第 %d/%d 批,共 %d 篇", b+1, batches, end-start)

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				outcomes[i] = s.runOne(ctx, gate, worker, records[i])
				if s.onOutcome != nil {
					s.onOutcome(outcomes[i])
				}
				return nil
			})
		}
		_ = g.Wait()

		if b < batches-1 && s.cooldown > 0 {
			log.Debug().Dur("cooldown", s.cooldown).Msg("批次间隔")
			if err := s.sleep(ctx, s.cooldown); err != nil {
				log.Warn().Err(err).Msg("⚠️  等待下一批时被取消")
			}
		}
	}
	return outcomes
}

// runOne 在信号量保护下调用 worker,panic 转换为失败结果
func (s *Scheduler) runOne(ctx context.Context, gate *semaphore.Weighted, worker Acquirer, record models.Record) (outcome models.Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			recordLog := utils.WithRecord(s.logger, record)
			recordLog.Error().Str(utils.FieldCode, models.ErrorCodeRecordFailed).Msgf("❌ 下载任务异常: %v", r)
			outcome = models.Failed(record, models.KindUnclassified, fmt.Sprintf("下载任务异常: %v", r), time.Since(start).Seconds())
		}
	}()

	if err := gate.Acquire(ctx, 1); err != nil {
		return models.Failed(record, models.KindUnclassified, fmt.Sprintf("等待下载槽位失败: %v", err), time.Since(start).Seconds())
	}
	defer gate.Release(1)

	return worker.Acquire(ctx, record)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
