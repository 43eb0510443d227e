package acquire

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/RecoveryAshes/cnkifetch/internal/browser"
	"github.com/RecoveryAshes/cnkifetch/internal/locator"
	"github.com/RecoveryAshes/cnkifetch/internal/models"
)

// ErrNotLaunched 会话尚未启动或已关闭
var ErrNotLaunched = errors.New("浏览器会话未启动")

// SessionConfig 会话配置
type SessionConfig struct {
	HomeURL       string
	Table         *locator.Table
	Acquire       models.AcquireConfig
	ScreenshotDir string // 调试截图目录,为空时不截图
}

// Session 一次运行的浏览器会话
// 持有唯一的当前页指针,只在准备阶段由 Tracker 修改
type Session struct {
	launcher browser.Launcher
	cfg      SessionConfig
	logger   zerolog.Logger
	resolver *locator.Resolver

	mu      sync.Mutex
	browser browser.Browser
	tracker *Tracker
	current browser.Page
	closers []func() error
	closed  bool
}

// NewSession 创建会话,调用 Launch 后才会启动浏览器
func NewSession(launcher browser.Launcher, cfg SessionConfig, logger zerolog.Logger) *Session {
	return &Session{
		launcher: launcher,
		cfg:      cfg,
		logger:   logger,
		resolver: locator.New(locator.ConfigFrom(cfg.Acquire), locator.WithLogger(logger)),
	}
}

// Launch 启动浏览器并准备第一个标签页
func (s *Session) Launch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := s.launcher.Launch()
	if err != nil {
		return fmt.Errorf("启动浏览器失败: %w", err)
	}
	s.mu.Lock()
	s.browser = b
	s.closed = false
	s.closers = append(s.closers, b.Close)
	s.mu.Unlock()

	page, err := s.firstPage(b)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.current = page
	s.tracker = NewTracker(b, TrackerConfigFrom(s.cfg.Acquire), s.logger)
	s.closers = append(s.closers, func() error {
		if p := s.Current(); p != nil {
			return p.Close()
		}
		return nil
	})
	s.mu.Unlock()

	s.logger.Info().Msg("✅ 浏览器已启动")
	return nil
}

// firstPage 复用浏览器启动时自带的标签页
func (s *Session) firstPage(b browser.Browser) (browser.Page, error) {
	pages, err := b.Pages()
	if err != nil {
		return nil, fmt.Errorf("获取标签页失败: %w", err)
	}
	if len(pages) > 0 {
		if err := b.Adopt(pages[0]); err != nil {
			return nil, fmt.Errorf("应用浏览器指纹失败: %w", err)
		}
		return pages[0], nil
	}
	page, err := b.NewPage()
	if err != nil {
		return nil, fmt.Errorf("创建标签页失败: %w", err)
	}
	return page, nil
}

// Current 当前页
func (s *Session) Current() browser.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Browser 浏览器会话,下载阶段由标签页池使用
func (s *Session) Browser() browser.Browser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browser
}

// Resolver 会话使用的定位器
func (s *Session) Resolver() *locator.Resolver { return s.resolver }

// Table 会话使用的策略表
func (s *Session) Table() *locator.Table { return s.cfg.Table }

// Config 会话配置
func (s *Session) Config() SessionConfig { return s.cfg }

// Act 执行一个可能引起跳转或新标签页的操作,然后更新当前页
func (s *Session) Act(ctx context.Context, hints []string, action func() error) error {
	s.mu.Lock()
	b, tracker, current := s.browser, s.tracker, s.current
	s.mu.Unlock()
	if b == nil || tracker == nil {
		return ErrNotLaunched
	}

	nav, err := Snapshot(b, current)
	if err != nil {
		return err
	}
	if err := action(); err != nil {
		return err
	}

	next, err := tracker.DetectAndSwitch(ctx, current, nav, hints)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return nil
}

// NavigateHome 打开站点首页
func (s *Session) NavigateHome(ctx context.Context) error {
	page := s.Current()
	if page == nil {
		return ErrNotLaunched
	}
	s.logger.Info().Str("url", s.cfg.HomeURL).Msg("正在打开首页")

	err := s.Act(ctx, nil, func() error {
		return page.Navigate(s.cfg.HomeURL, models.Ms(s.cfg.Acquire.Timeouts.PageLoad))
	})
	if err != nil {
		return navigationError("打开首页", err)
	}
	return sleep(ctx, models.Ms(s.cfg.Acquire.Waits.ContentLoad))
}

// SelectCategory 点击文献类型导航
func (s *Session) SelectCategory(ctx context.Context, category models.DocumentCategory) error {
	target, err := s.cfg.Table.CategoryTarget(category)
	if err != nil {
		return err
	}

	page := s.Current()
	if page == nil {
		return ErrNotLaunched
	}
	s.mu.Lock()
	tracker := s.tracker
	s.mu.Unlock()
	tracker.WaitStable(page)

	log := s.logger
	log.Info().Msgf("正在选择文献类型: %s", category)

	el, err := s.resolver.Resolve(ctx, page, target)
	if err != nil {
		s.debugScreenshot("category")
		return fmt.Errorf("选择文献类型 %s 失败: %w", category, err)
	}

	err = s.Act(ctx, nil, func() error {
		if err := el.ScrollIntoView(); err != nil {
			log.Debug().Err(err).Msg("滚动到元素失败")
		}
		return el.Click()
	})
	if err != nil {
		return navigationError("选择文献类型", err)
	}

	log.Info().Msg("✅ 已选择文献类型")
	return sleep(ctx, models.Ms(s.cfg.Acquire.Waits.ContentLoad))
}

// PerformSearch 输入检索词并回车,等待结果列表出现
// 结果列表一直没有出现只记录警告,由提取阶段决定结果是否为空
func (s *Session) PerformSearch(ctx context.Context, term string) error {
	page := s.Current()
	if page == nil {
		return ErrNotLaunched
	}
	log := s.logger
	log.Info().Msgf("正在检索: %s", term)

	input, err := s.resolver.Resolve(ctx, page, locator.Target{
		Description: "检索框",
		Strategies:  s.cfg.Table.SearchInput,
		Timeout:     models.Ms(s.cfg.Acquire.Timeouts.ElementFind),
	})
	if err != nil {
		s.debugScreenshot("search_input")
		return fmt.Errorf("未找到检索框: %w", err)
	}
	if err := input.Fill(term); err != nil {
		return fmt.Errorf("输入检索词失败: %w", err)
	}

	if err := s.Act(ctx, s.cfg.Table.SearchHints, input.PressEnter); err != nil {
		return navigationError("执行检索", err)
	}
	return s.waitForResults(ctx)
}

// waitForResults 轮询结果行,超时后滚动再查一次
func (s *Session) waitForResults(ctx context.Context) error {
	page := s.Current()
	deadline := time.Now().Add(models.Ms(s.cfg.Acquire.Timeouts.ResultWait))
	poll := models.Ms(s.cfg.Acquire.Waits.PollInterval)

	for {
		if n := s.visibleRows(page); n > 0 {
			s.logger.Info().Int("rows", n).Msg("✅ 检索结果已加载")
			return nil
		}
		if !time.Now().Before(deadline) {
			break
		}
		if err := sleep(ctx, poll); err != nil {
			return err
		}
	}

	s.logger.Info().Msg("未找到结果列表,尝试滚动页面")
	if err := page.ScrollHalf(); err != nil {
		s.logger.Debug().Err(err).Msg("滚动页面失败")
	}
	if err := sleep(ctx, models.Ms(s.cfg.Acquire.Waits.Scroll)); err != nil {
		return err
	}
	if n := s.visibleRows(page); n > 0 {
		s.logger.Info().Int("rows", n).Msg("✅ 滚动后找到检索结果")
		return nil
	}

	s.logger.Warn().Str("url", page.URL()).Str("title", page.Title()).Msg("⚠️  未找到检索结果列表")
	s.debugScreenshot("search_result")
	return nil
}

// visibleRows 主选择器或备用选择器下可见的结果行数
func (s *Session) visibleRows(page browser.Page) int {
	rows := s.cfg.Table.ResultRows
	for _, expr := range []string{rows.Primary, rows.Alternate} {
		if expr == "" {
			continue
		}
		elements, err := page.Query(browser.CSS(expr))
		if err != nil {
			continue
		}
		for _, el := range elements {
			if ok, _ := el.Visible(); ok {
				return len(elements)
			}
		}
	}
	return 0
}

// debugScreenshot 保存当前页截图到 debug_<name>_<时间>.png
func (s *Session) debugScreenshot(name string) {
	page := s.Current()
	if page == nil || !s.cfg.Acquire.Download.DebugScreenshots || s.cfg.ScreenshotDir == "" {
		return
	}
	path := filepath.Join(s.cfg.ScreenshotDir, fmt.Sprintf("debug_%s_%s.png", name, time.Now().Format("20060102_150405")))
	if err := page.Screenshot(path); err != nil {
		s.logger.Debug().Err(err).Msg("保存截图失败")
		return
	}
	s.logger.Info().Str("path", path).Msg("已保存页面截图")
}

// Close 按获取的相反顺序释放资源,可重复调用
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	s.current = nil
	s.browser = nil
	s.tracker = nil
	s.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("关闭浏览器会话失败: %w", errors.Join(errs...))
	}
	s.logger.Info().Msg("浏览器会话已关闭")
	return nil
}

// navigationError 浏览器超时归类为 NavigationTimeout,已分类的错误保持不变
func navigationError(op string, err error) error {
	var ae *models.AcquireError
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, browser.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return models.NewError(models.KindNavigationTimeout, op, err)
	default:
		return models.NewError(models.KindUnclassified, op, err)
	}
}
