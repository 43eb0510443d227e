package locator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/RecoveryAshes/cnkifetch/internal/browser"
	"github.com/RecoveryAshes/cnkifetch/internal/models"
)

// ErrNotFound 所有策略均未找到可验证的元素
var ErrNotFound = errors.New("未找到匹配的元素")

// retryCount 恢复阶段重试的策略数
const retryCount = 2

// Scope 可以在其中查找元素的范围, browser.Page 和 browser.Element 都满足
type Scope interface {
	Query(sel browser.Selector) ([]browser.Element, error)
}

// Target 一次定位请求
type Target struct {
	Description string     // 日志中的名称
	Strategies  []Strategy // 按顺序尝试
	Expected    string     // 元素文本需要等于或包含的内容,为空时不验证
	ScanKind    string     // 文本扫描的元素类型,为空时不做文本扫描
	Timeout     time.Duration
	// SkipRecovery 为true时不滚动重试,用于有备选目标的场景(如PDF/CAJ按钮)
	SkipRecovery bool
}

// Config 定位器的时间参数
type Config struct {
	SubTimeout   time.Duration // 单个策略等待可见元素的时间
	RetryTimeout time.Duration // 恢复阶段单个策略的等待时间
	Settle       time.Duration // 滚动后的等待
	PollInterval time.Duration
}

// ConfigFrom 从引擎配置生成定位器配置
func ConfigFrom(c models.AcquireConfig) Config {
	return Config{
		SubTimeout:   models.Ms(c.Timeouts.Selector),
		RetryTimeout: models.Ms(c.Timeouts.SelectorRetry),
		Settle:       models.Ms(c.Waits.Scroll),
		PollInterval: models.Ms(c.Waits.PollInterval),
	}
}

// Resolver 多策略元素定位器
type Resolver struct {
	cfg    Config
	logger zerolog.Logger
}

// Option 定位器选项
type Option func(*Resolver)

// WithLogger 设置日志
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// New 创建定位器
func New(cfg Config, opts ...Option) *Resolver {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	r := &Resolver{cfg: cfg, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve 在页面上按顺序尝试策略,返回第一个可见且文本验证通过的元素
//
// 全部失败时滚动页面后重试前两个策略,仍失败则按文本扫描 ScanKind 元素。
// 都失败时返回 ElementUnresolvable 错误。
func (r *Resolver) Resolve(ctx context.Context, page browser.Page, t Target) (browser.Element, error) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = r.cfg.SubTimeout
	}
	log := r.logger.With().Str("target", t.Description).Logger()

	for _, s := range t.Strategies {
		el, err := r.attempt(ctx, page, s, t.Expected, timeout)
		if err != nil {
			return nil, err
		}
		if el != nil {
			log.Debug().Str("strategy", s.Name).Msg("✅ 定位成功")
			return el, nil
		}
		log.Debug().Str("strategy", s.Name).Msg("策略未命中")
	}

	// 恢复: 滚动触发懒加载后重试前两个策略
	if len(t.Strategies) > 0 && !t.SkipRecovery {
		log.Debug().Msg("滚动页面后重试")
		if err := page.ScrollHalf(); err != nil {
			log.Debug().Err(err).Msg("滚动页面失败")
		}
		if err := sleep(ctx, r.cfg.Settle); err != nil {
			return nil, err
		}
		retry := t.Strategies
		if len(retry) > retryCount {
			retry = retry[:retryCount]
		}
		retryTimeout := r.cfg.RetryTimeout
		if retryTimeout <= 0 {
			retryTimeout = timeout
		}
		for _, s := range retry {
			el, err := r.attempt(ctx, page, s, t.Expected, retryTimeout)
			if err != nil {
				return nil, err
			}
			if el != nil {
				log.Debug().Str("strategy", s.Name).Msg("✅ 滚动后定位成功")
				return el, nil
			}
		}
	}

	if t.ScanKind != "" && t.Expected != "" {
		if el, how := r.scan(page, t.ScanKind, t.Expected); el != nil {
			log.Info().Str("match", how).Msg("✅ 通过文本扫描找到元素")
			return el, nil
		}
	}

	return nil, models.NewError(models.KindElementUnresolvable, "定位"+t.Description,
		fmt.Errorf("%w: 尝试了 %d 个策略", ErrNotFound, len(t.Strategies)))
}

// ResolveIn 在scope内依次尝试策略,不等待也不做恢复
// 用于结果行这类已经渲染完成的局部内容
func (r *Resolver) ResolveIn(scope Scope, strategies []Strategy, expected string) (browser.Element, error) {
	for _, s := range strategies {
		if el := r.match(scope, s, expected); el != nil {
			return el, nil
		}
	}
	return nil, models.NewError(models.KindElementUnresolvable, "行内定位",
		fmt.Errorf("%w: 尝试了 %d 个策略", ErrNotFound, len(strategies)))
}

// attempt 在timeout内轮询一个策略
// 出现可见元素后只验证一次,文本不符时直接放弃该策略
func (r *Resolver) attempt(ctx context.Context, page browser.Page, s Strategy, expected string, timeout time.Duration) (browser.Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		visible := r.visible(page, s)
		if len(visible) > 0 {
			return verify(visible, expected), nil
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}
		wait := r.cfg.PollInterval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// match 单次查询并验证
func (r *Resolver) match(scope Scope, s Strategy, expected string) browser.Element {
	visible := r.visible(scope, s)
	if len(visible) == 0 {
		return nil
	}
	return verify(visible, expected)
}

// visible 查询策略匹配的可见元素
func (r *Resolver) visible(scope Scope, s Strategy) []browser.Element {
	elements, err := scope.Query(s.selector())
	if err != nil {
		r.logger.Debug().Err(err).Str("strategy", s.Name).Msg("查询失败")
		return nil
	}

	var result []browser.Element
	for _, el := range elements {
		if ok, err := el.Visible(); err != nil || !ok {
			continue
		}
		switch s.Mode {
		case ModeTextExact:
			if textOf(el) != s.Text {
				continue
			}
		case ModeTextContains:
			if !strings.Contains(textOf(el), s.Text) {
				continue
			}
		}
		result = append(result, el)
	}
	return result
}

// scan 文本扫描: 精确匹配、包含匹配、两字重叠依次放宽
func (r *Resolver) scan(page browser.Page, kind, expected string) (browser.Element, string) {
	elements, err := page.Query(browser.CSS(kind))
	if err != nil {
		return nil, ""
	}

	type candidate struct {
		el   browser.Element
		text string
	}
	candidates := make([]candidate, 0, len(elements))
	for _, el := range elements {
		if text := textOf(el); text != "" {
			candidates = append(candidates, candidate{el, text})
		}
	}

	for _, c := range candidates {
		if c.text == expected {
			return c.el, "exact"
		}
	}
	for _, c := range candidates {
		if strings.Contains(c.text, expected) {
			return c.el, "contains"
		}
	}
	pairs := bigrams(expected)
	for _, c := range candidates {
		for _, p := range pairs {
			if strings.Contains(c.text, p) {
				return c.el, "overlap:" + p
			}
		}
	}
	return nil, ""
}

// bigrams 按字符切出所有相邻两字
func bigrams(s string) []string {
	runes := []rune(s)
	if len(runes) < 2 {
		return nil
	}
	result := make([]string, 0, len(runes)-1)
	for i := 0; i+1 < len(runes); i++ {
		result = append(result, string(runes[i:i+2]))
	}
	return result
}

func verify(elements []browser.Element, expected string) browser.Element {
	for _, el := range elements {
		if expected == "" {
			return el
		}
		text := textOf(el)
		if text == expected || strings.Contains(text, expected) {
			return el
		}
	}
	return nil
}

func textOf(el browser.Element) string {
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
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
