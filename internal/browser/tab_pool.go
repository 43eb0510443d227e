package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// blankURL 归还标签页时导航到的空白页
const blankURL = "about:blank"

// TabPool 下载阶段使用的标签页池
// 每个进行中的worker独占一个标签页,不共享会话的当前页指针
type TabPool struct {
	browser  Browser
	monitor  *ResourceMonitor
	logger   zerolog.Logger
	capacity int

	// 所有活跃的标签页
	pages []Page

	// 可用标签页
	available chan Page

	// 容量令牌,创建标签页前获取,销毁后归还
	slots chan struct{}

	// 标签页清理失败次数
	failures map[string]int

	mu     sync.Mutex
	closed bool
}

// NewTabPool 创建标签页池
// 容量取 capacity 与资源监控器给出的上限中较小者
func NewTabPool(b Browser, capacity int, monitor *ResourceMonitor, logger zerolog.Logger) *TabPool {
	if capacity < 1 {
		capacity = 1
	}
	if monitor != nil {
		if limit := monitor.CalculateMaxTabs(); limit < capacity {
			logger.Warn().Msgf("受系统资源限制,标签页上限由 %d 降为 %d", capacity, limit)
			capacity = limit
		}
	}

	return &TabPool{
		browser:   b,
		monitor:   monitor,
		logger:    logger,
		capacity:  capacity,
		pages:     make([]Page, 0, capacity),
		available: make(chan Page, capacity),
		slots:     make(chan struct{}, capacity),
		failures:  make(map[string]int),
	}
}

// Capacity 标签页上限
func (tp *TabPool) Capacity() int {
	return tp.capacity
}

// Acquire 获取一个独占的标签页,已达上限时阻塞等待归还
func (tp *TabPool) Acquire(ctx context.Context) (Page, error) {
	tp.mu.Lock()
	if tp.closed {
		tp.mu.Unlock()
		return nil, fmt.Errorf("标签页池已关闭")
	}
	tp.mu.Unlock()

	// 优先复用
	select {
	case p := <-tp.available:
		return p, nil
	default:
	}

	// 资源紧张且已有标签页时只等待归还
	if tp.monitor != nil && tp.Size() > 0 {
		if ok, reason := tp.monitor.CheckResourceAvailability(); !ok {
			tp.logger.Warn().Msgf("⚠️  %s,等待已有标签页归还", reason)
			select {
			case p := <-tp.available:
				return p, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	select {
	case p := <-tp.available:
		return p, nil
	case tp.slots <- struct{}{}:
		p, err := tp.browser.NewPage()
		if err != nil {
			<-tp.slots
			return nil, err
		}
		tp.mu.Lock()
		tp.pages = append(tp.pages, p)
		size := len(tp.pages)
		tp.mu.Unlock()
		tp.logger.Debug().Msgf("创建新标签页,当前标签页数: %d, 上限: %d", size, tp.capacity)
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release 清理后归还标签页,连续两次清理失败则销毁
func (tp *TabPool) Release(p Page) {
	if p == nil {
		return
	}

	tp.mu.Lock()
	closed := tp.closed
	tp.mu.Unlock()
	if closed {
		tp.destroy(p)
		return
	}

	if err := tp.clean(p); err != nil {
		tp.logger.Warn().Err(err).Msg("清理标签页失败,重试一次")
		if err := tp.clean(p); err != nil {
			tp.mu.Lock()
			tp.failures[p.ID()]++
			count := tp.failures[p.ID()]
			tp.mu.Unlock()
			if count >= 2 {
				tp.logger.Warn().Msgf("标签页清理连续失败%d次,销毁", count)
				tp.destroy(p)
				return
			}
		}
	} else {
		tp.mu.Lock()
		delete(tp.failures, p.ID())
		tp.mu.Unlock()
	}

	select {
	case tp.available <- p:
	default:
		tp.destroy(p)
	}
}

// clean 导航到空白页,丢弃上一个任务留下的页面状态
func (tp *TabPool) clean(p Page) error {
	return p.Navigate(blankURL, 5*time.Second)
}

// destroy 关闭标签页并归还容量令牌
func (tp *TabPool) destroy(p Page) {
	tp.mu.Lock()
	found := false
	for i, existing := range tp.pages {
		if existing == p {
			tp.pages = append(tp.pages[:i], tp.pages[i+1:]...)
			found = true
			break
		}
	}
	delete(tp.failures, p.ID())
	tp.mu.Unlock()

	// 池关闭时已统一关闭
	if !found {
		return
	}
	if err := p.Close(); err != nil {
		tp.logger.Warn().Err(err).Msg("关闭标签页失败")
	}
	select {
	case <-tp.slots:
	default:
	}
}

// Size 当前打开的标签页数
func (tp *TabPool) Size() int {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return len(tp.pages)
}

// Close 关闭所有标签页,可重复调用
func (tp *TabPool) Close() error {
	tp.mu.Lock()
	if tp.closed {
		tp.mu.Unlock()
		return nil
	}
	tp.closed = true
	pages := tp.pages
	tp.pages = nil
	tp.mu.Unlock()

	for _, p := range pages {
		if err := p.Close(); err != nil {
			tp.logger.Warn().Err(err).Msg("关闭标签页失败")
		}
	}
	tp.logger.Debug().Msgf("标签页池已关闭,共关闭 %d 个标签页", len(pages))
	return nil
}
