package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// ErrTimeout 浏览器操作超时
var ErrTimeout = errors.New("浏览器操作超时")

// defaultOpTimeout 没有单独指定超时的浏览器调用使用的超时
const defaultOpTimeout = 15 * time.Second

// DefaultLaunchArgs 默认启动参数,隐藏自动化特征
var DefaultLaunchArgs = []string{
	"--disable-blink-features=AutomationControlled",
	"--disable-dev-shm-usage",
	"--no-sandbox",
	"--disable-infobars",
	"--ignore-certificate-errors",
}

// LaunchOptions 浏览器启动参数
type LaunchOptions struct {
	Headless    bool
	BinPath     string        // 为空时使用rod自动下载的Chromium
	Args        []string      // 形如 --name=value
	SlowMotion  time.Duration // 每个输入动作之间的延迟
	DownloadDir string        // 下载文件的暂存目录
	Fingerprint Fingerprint
}

// RodLauncher 基于go-rod的启动器
type RodLauncher struct {
	opts   LaunchOptions
	logger zerolog.Logger
}

// NewRodLauncher 创建启动器
func NewRodLauncher(opts LaunchOptions, logger zerolog.Logger) *RodLauncher {
	return &RodLauncher{opts: opts, logger: logger}
}

// Launch 启动浏览器并建立连接
func (rl *RodLauncher) Launch() (Browser, error) {
	l := launcher.New().Headless(rl.opts.Headless)
	if rl.opts.BinPath != "" {
		l = l.Bin(rl.opts.BinPath)
	}
	for _, arg := range rl.opts.Args {
		name, values := splitFlag(arg)
		if name == "" {
			continue
		}
		l = l.Set(flags.Flag(name), values...)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if rl.opts.SlowMotion > 0 {
		b = b.SlowMotion(rl.opts.SlowMotion)
	}
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	if rl.opts.DownloadDir != "" {
		if err := os.MkdirAll(rl.opts.DownloadDir, 0755); err != nil {
			_ = b.Close()
			l.Kill()
			return nil, fmt.Errorf("创建下载暂存目录失败: %w", err)
		}
		err := proto.BrowserSetDownloadBehavior{
			Behavior:      proto.BrowserSetDownloadBehaviorBehaviorAllowAndName,
			DownloadPath:  rl.opts.DownloadDir,
			EventsEnabled: true,
		}.Call(b)
		if err != nil {
			_ = b.Close()
			l.Kill()
			return nil, fmt.Errorf("设置下载行为失败: %w", err)
		}
	}

	rl.logger.Info().
		Bool("headless", rl.opts.Headless).
		Str("download_dir", rl.opts.DownloadDir).
		Msg("✅ 浏览器已启动")

	return &rodBrowser{
		launcher:    l,
		browser:     b,
		fingerprint: rl.opts.Fingerprint,
		downloadDir: rl.opts.DownloadDir,
		logger:      rl.logger,
		adopted:     make(map[proto.TargetTargetID]bool),
		order:       make(map[proto.TargetTargetID]int),
	}, nil
}

// splitFlag 拆分 --name=value 形式的参数
func splitFlag(arg string) (string, []string) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	name, value, found := strings.Cut(arg, "=")
	if !found {
		return name, nil
	}
	return name, []string{value}
}

// rodBrowser Browser的go-rod实现
type rodBrowser struct {
	launcher    *launcher.Launcher
	browser     *rod.Browser
	fingerprint Fingerprint
	downloadDir string
	logger      zerolog.Logger

	mu      sync.Mutex
	adopted map[proto.TargetTargetID]bool
	order   map[proto.TargetTargetID]int // 首次发现的顺序
	nextSeq int
	closed  bool
}

// Pages 返回所有标签页,按首次发现的顺序排列
func (b *rodBrowser) Pages() ([]Page, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrowserClosed
	}
	b.mu.Unlock()

	pages, err := b.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("获取标签页列表失败: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range pages {
		if _, seen := b.order[p.TargetID]; !seen {
			b.order[p.TargetID] = b.nextSeq
			b.nextSeq++
		}
	}
	sort.SliceStable(pages, func(i, j int) bool {
		return b.order[pages[i].TargetID] < b.order[pages[j].TargetID]
	})

	result := make([]Page, 0, len(pages))
	for _, p := range pages {
		result = append(result, &rodPage{page: p, owner: b})
	}
	return result, nil
}

// NewPage 新建标签页并应用指纹
func (b *rodBrowser) NewPage() (Page, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrowserClosed
	}
	b.mu.Unlock()

	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		// 浏览器可能已崩溃或连接断开
		return nil, fmt.Errorf("创建标签页失败(浏览器可能已崩溃): %w", err)
	}
	if err := b.fingerprint.apply(page); err != nil {
		_ = page.Close()
		return nil, err
	}

	b.mu.Lock()
	b.adopted[page.TargetID] = true
	if _, seen := b.order[page.TargetID]; !seen {
		b.order[page.TargetID] = b.nextSeq
		b.nextSeq++
	}
	b.mu.Unlock()

	return &rodPage{page: page, owner: b}, nil
}

// Adopt 对站点自行打开的标签页应用指纹,每个标签页只应用一次
func (b *rodBrowser) Adopt(p Page) error {
	rp, ok := p.(*rodPage)
	if !ok {
		return fmt.Errorf("不支持的标签页类型: %T", p)
	}

	b.mu.Lock()
	if b.adopted[rp.page.TargetID] {
		b.mu.Unlock()
		return nil
	}
	b.adopted[rp.page.TargetID] = true
	b.mu.Unlock()

	return b.fingerprint.apply(rp.page)
}

// Close 关闭浏览器并清理进程,可重复调用
func (b *rodBrowser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := b.browser.Close()
	b.launcher.Kill()
	b.launcher.Cleanup()

	if err != nil {
		return fmt.Errorf("关闭浏览器失败: %w", err)
	}
	b.logger.Info().Msg("浏览器已关闭")
	return nil
}

// rodPage Page的go-rod实现
type rodPage struct {
	page  *rod.Page
	owner *rodBrowser
}

// with 返回带超时的页面副本
func (p *rodPage) with(timeout time.Duration) (*rod.Page, context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return p.page.Context(ctx), ctx, cancel
}

func (p *rodPage) ID() string {
	return string(p.page.TargetID)
}

func (p *rodPage) URL() string {
	pg, _, cancel := p.with(0)
	defer cancel()
	info, err := pg.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) Title() string {
	pg, _, cancel := p.with(0)
	defer cancel()
	info, err := pg.Info()
	if err != nil {
		return ""
	}
	return info.Title
}

func (p *rodPage) Navigate(url string, timeout time.Duration) error {
	pg, _, cancel := p.with(timeout)
	defer cancel()
	if err := pg.Navigate(url); err != nil {
		return wrapTimeout(fmt.Errorf("打开页面失败 %s: %w", url, err))
	}
	return nil
}

func (p *rodPage) WaitLoad(timeout time.Duration) error {
	pg, _, cancel := p.with(timeout)
	defer cancel()
	return wrapTimeout(pg.WaitLoad())
}

// WaitNetworkIdle 等待500ms内没有新的网络请求(忽略图片和媒体)
func (p *rodPage) WaitNetworkIdle(timeout time.Duration) error {
	pg, ctx, cancel := p.with(timeout)
	defer cancel()

	wait := pg.WaitRequestIdle(500*time.Millisecond, nil, nil,
		[]proto.NetworkResourceType{proto.NetworkResourceTypeImage, proto.NetworkResourceTypeMedia})
	wait()

	if ctx.Err() != nil {
		return fmt.Errorf("%w: 等待网络空闲超过 %s", ErrTimeout, timeout)
	}
	return nil
}

func (p *rodPage) Query(sel Selector) ([]Element, error) {
	pg, _, cancel := p.with(0)
	defer cancel()

	var (
		els rod.Elements
		err error
	)
	switch sel.Kind {
	case KindXPath:
		els, err = pg.ElementsX(sel.Expr)
	default:
		els, err = pg.Elements(sel.Expr)
	}
	if err != nil {
		return nil, wrapTimeout(fmt.Errorf("查询元素失败 %s: %w", sel, err))
	}
	return wrapElements(els), nil
}

func (p *rodPage) ScrollHalf() error {
	pg, _, cancel := p.with(0)
	defer cancel()
	_, err := pg.Eval(`() => window.scrollTo(0, document.body.scrollHeight / 2)`)
	return err
}

func (p *rodPage) Screenshot(path string) error {
	pg, _, cancel := p.with(0)
	defer cancel()
	data, err := pg.Screenshot(true, nil)
	if err != nil {
		return fmt.Errorf("截图失败: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ExpectDownload 监听本标签页发起的下载,下载行为在启动时统一设置为按GUID命名
func (p *rodPage) ExpectDownload(timeout time.Duration, trigger func() error) (*Download, error) {
	if p.owner.downloadDir == "" {
		return nil, fmt.Errorf("未配置下载暂存目录")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var (
		begin *proto.BrowserDownloadWillBegin
		done  *proto.BrowserDownloadProgress
	)
	frameID := p.page.FrameID
	wait := p.owner.browser.Context(ctx).EachEvent(
		func(e *proto.BrowserDownloadWillBegin) bool {
			if begin == nil && e.FrameID == frameID {
				begin = e
			}
			return false
		},
		func(e *proto.BrowserDownloadProgress) bool {
			if begin == nil || e.GUID != begin.GUID {
				return false
			}
			if e.State == proto.BrowserDownloadProgressStateCompleted ||
				e.State == proto.BrowserDownloadProgressStateCanceled {
				done = e
				return true
			}
			return false
		},
	)

	if err := trigger(); err != nil {
		return nil, err
	}
	wait()

	if begin == nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s内未开始下载", ErrNoDownload, timeout)
		}
		return nil, ErrNoDownload
	}
	if done == nil {
		return nil, fmt.Errorf("%w: %s", ErrDownloadTimeout, begin.SuggestedFilename)
	}
	if done.State == proto.BrowserDownloadProgressStateCanceled {
		return nil, fmt.Errorf("下载被取消: %s", begin.SuggestedFilename)
	}

	return &Download{
		Path:              filepath.Join(p.owner.downloadDir, begin.GUID),
		SuggestedFilename: begin.SuggestedFilename,
		URL:               begin.URL,
	}, nil
}

func (p *rodPage) Close() error {
	return p.page.Close()
}

// rodElement Element的go-rod实现
type rodElement struct {
	el *rod.Element
}

func wrapElements(els rod.Elements) []Element {
	result := make([]Element, 0, len(els))
	for _, el := range els {
		result = append(result, &rodElement{el: el})
	}
	return result
}

func (e *rodElement) with() (*rod.Element, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	return e.el.Context(ctx), cancel
}

func (e *rodElement) Text() (string, error) {
	el, cancel := e.with()
	defer cancel()
	return el.Text()
}

func (e *rodElement) Visible() (bool, error) {
	el, cancel := e.with()
	defer cancel()
	return el.Visible()
}

func (e *rodElement) Attribute(name string) (string, error) {
	el, cancel := e.with()
	defer cancel()
	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

func (e *rodElement) Click() error {
	el, cancel := e.with()
	defer cancel()
	return wrapTimeout(el.Click(proto.InputMouseButtonLeft, 1))
}

func (e *rodElement) ScrollIntoView() error {
	el, cancel := e.with()
	defer cancel()
	return el.ScrollIntoView()
}

func (e *rodElement) Fill(text string) error {
	el, cancel := e.with()
	defer cancel()
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("清空输入框失败: %w", err)
	}
	return el.Input(text)
}

func (e *rodElement) PressEnter() error {
	el, cancel := e.with()
	defer cancel()
	return el.Type(input.Enter)
}

func (e *rodElement) Query(sel Selector) ([]Element, error) {
	el, cancel := e.with()
	defer cancel()

	var (
		els rod.Elements
		err error
	)
	switch sel.Kind {
	case KindXPath:
		els, err = el.ElementsX(sel.Expr)
	default:
		els, err = el.Elements(sel.Expr)
	}
	if err != nil {
		return nil, wrapTimeout(err)
	}
	return wrapElements(els), nil
}

// wrapTimeout 把context超时统一包装为ErrTimeout
func wrapTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
