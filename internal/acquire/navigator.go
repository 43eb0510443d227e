package acquire

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/RecoveryAshes/cnkifetch/internal/browser"
	"github.com/RecoveryAshes/cnkifetch/internal/models"
	"github.com/RecoveryAshes/cnkifetch/internal/utils"
)

// NavigationContext 操作前的页面快照,每次检测使用一次
type NavigationContext struct {
	PreviousURL string
	CurrentID   string
	PagesBefore map[string]string // 标签页ID → URL
	CountBefore int
}

// Snapshot 记录操作前的页面状态
func Snapshot(b browser.Browser, current browser.Page) (NavigationContext, error) {
	pages, err := b.Pages()
	if err != nil {
		return NavigationContext{}, fmt.Errorf("获取标签页列表失败: %w", err)
	}
	nav := NavigationContext{
		PagesBefore: make(map[string]string, len(pages)),
		CountBefore: len(pages),
	}
	for _, p := range pages {
		nav.PagesBefore[p.ID()] = p.URL()
	}
	if current != nil {
		nav.PreviousURL = current.URL()
		nav.CurrentID = current.ID()
	}
	return nav, nil
}

// TrackerConfig 导航检测的等待时间
type TrackerConfig struct {
	Settle      time.Duration // 操作后等待跳转或新标签页出现
	Recheck     time.Duration // 未检测到变化时的复查延迟
	NetworkIdle time.Duration
	PageLoad    time.Duration
}

// TrackerConfigFrom 从引擎配置生成
func TrackerConfigFrom(c models.AcquireConfig) TrackerConfig {
	return TrackerConfig{
		Settle:      models.Ms(c.Waits.PageSwitch),
		Recheck:     models.Ms(c.Waits.Recheck),
		NetworkIdle: models.Ms(c.Timeouts.NetworkIdle),
		PageLoad:    models.Ms(c.Timeouts.PageLoad),
	}
}

// Tracker 判断操作之后哪个标签页是当前页
//
// 站点有时原地跳转,有时打开新标签页,取决于负载和弹窗拦截,
// 因此每次操作后都要按固定顺序检查所有标签页。
type Tracker struct {
	browser browser.Browser
	cfg     TrackerConfig
	logger  zerolog.Logger
}

// NewTracker 创建导航检测器
func NewTracker(b browser.Browser, cfg TrackerConfig, logger zerolog.Logger) *Tracker {
	return &Tracker{browser: b, cfg: cfg, logger: logger}
}

// DetectAndSwitch 返回操作后的当前页,检测不到变化时返回current
//
// 检查顺序:
//  1. 快照中没有的新标签页
//  2. 最后打开的标签页地址与操作前不同
//  3. 当前页地址变化(原地跳转)
//  4. 地址包含hints中任一关键字(不区分大小写)且与操作前不同
//  5. 地址与操作前及当前页都不同
//
// 都不满足时延迟复查一次新标签页和关键字。选中的页面会等待加载稳定,等待超时不报错。
func (t *Tracker) DetectAndSwitch(ctx context.Context, current browser.Page, nav NavigationContext, hints []string) (browser.Page, error) {
	if err := sleep(ctx, t.cfg.Settle); err != nil {
		return current, err
	}

	pages, err := t.browser.Pages()
	if err != nil {
		return current, fmt.Errorf("获取标签页列表失败: %w", err)
	}

	target, reason := t.decide(pages, current, nav, hints)
	if target == nil {
		if err := sleep(ctx, t.cfg.Recheck); err != nil {
			return current, err
		}
		if pages, err = t.browser.Pages(); err == nil {
			target, reason = t.recheck(pages, nav, hints)
		}
	}

	if target == nil {
		t.logger.Warn().Str("url", utils.RedactURL(urlOf(current))).Msg("⚠️  未检测到页面跳转,继续使用当前页")
		t.WaitStable(current)
		return current, nil
	}

	if _, existed := nav.PagesBefore[target.ID()]; !existed {
		if err := t.browser.Adopt(target); err != nil {
			t.logger.Warn().Err(err).Msg("新标签页应用浏览器指纹失败")
		}
	}
	t.logger.Info().Str("url", utils.RedactURL(target.URL())).Str("reason", reason).Msg("切换当前页")
	t.WaitStable(target)
	return target, nil
}

func (t *Tracker) decide(pages []browser.Page, current browser.Page, nav NavigationContext, hints []string) (browser.Page, string) {
	// 1. 新标签页,取最后打开的
	if p := newest(pages, nav); p != nil {
		return p, "新标签页"
	}

	// 2. 最后打开的标签页地址变化
	if len(pages) > 0 {
		if last := pages[len(pages)-1]; last.URL() != nav.PreviousURL {
			return last, "最新标签页地址变化"
		}
	}

	// 3. 原地跳转
	if current != nil && current.URL() != nav.PreviousURL {
		return current, "当前页跳转"
	}

	// 4. 关键字
	if p := matchHints(pages, nav.PreviousURL, hints); p != nil {
		return p, "地址包含关键字"
	}

	// 5. 任意地址不同的标签页
	currentURL := urlOf(current)
	for _, p := range pages {
		if u := p.URL(); u != nav.PreviousURL && u != currentURL {
			return p, "其他标签页"
		}
	}
	return nil, ""
}

// recheck 延迟复查,只看新标签页和关键字
func (t *Tracker) recheck(pages []browser.Page, nav NavigationContext, hints []string) (browser.Page, string) {
	if p := newest(pages, nav); p != nil {
		return p, "复查发现新标签页"
	}
	if p := matchHints(pages, nav.PreviousURL, hints); p != nil {
		return p, "复查发现关键字"
	}
	return nil, ""
}

// WaitStable 等待页面稳定,不返回错误
func (t *Tracker) WaitStable(page browser.Page) {
	waitStable(page, t.cfg, t.logger)
}

// waitStable 先等网络空闲,超时再等load事件
func waitStable(page browser.Page, cfg TrackerConfig, logger zerolog.Logger) {
	if page == nil {
		return
	}
	err := page.WaitNetworkIdle(cfg.NetworkIdle)
	if err == nil {
		return
	}
	logger.Debug().Err(err).Msg("等待网络空闲超时,改为等待页面加载")
	if err := page.WaitLoad(cfg.PageLoad); err != nil {
		logger.Debug().Err(err).Msg("等待页面加载超时,继续执行")
	}
}

func newest(pages []browser.Page, nav NavigationContext) browser.Page {
	for i := len(pages) - 1; i >= 0; i-- {
		if _, ok := nav.PagesBefore[pages[i].ID()]; !ok {
			return pages[i]
		}
	}
	return nil
}

func matchHints(pages []browser.Page, previousURL string, hints []string) browser.Page {
	for _, p := range pages {
		u := p.URL()
		if u == previousURL {
			continue
		}
		lower := strings.ToLower(u)
		for _, h := range hints {
			if h != "" && strings.Contains(lower, strings.ToLower(h)) {
				return p
			}
		}
	}
	return nil
}

func urlOf(p browser.Page) string {
	if p == nil {
		return ""
	}
	return p.URL()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
