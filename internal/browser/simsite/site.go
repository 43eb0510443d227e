// Package simsite 提供一个内存中的模拟站点,实现 browser 包的驱动接口。
//
// 页面是静态HTML,元素行为由 data-* 属性描述:
//   - <a href=".." target="_blank">      点击后在新标签页打开
//   - <a href="..">                      点击后在当前标签页跳转
//   - data-download="文件名.pdf"          点击后触发下载, data-content 为文件内容
//   - data-deny="需要付费购买"             点击后下载失败,错误信息为属性值
//   - data-submit="/search?q={q}"         输入框按回车后跳转, data-target="_blank" 时打开新标签页
//   - data-lazy                           滚动页面之前不可见
//   - hidden / style="display:none"       不可见
//
// 用于在没有真实浏览器的环境下验证定位、导航、提取和下载逻辑。
package simsite

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/cnkifetch/internal/browser"
)

// Site 模拟站点,同时实现 browser.Launcher 和 browser.Browser
type Site struct {
	mu          sync.Mutex
	docs        map[string]string
	pages       []*Page
	adopted     map[string]bool
	queries     map[string]int
	nextID      int
	downloadDir string
	closed      bool
	closeCount  int
	launchErr   error

	// NetworkIdleFails 为true时WaitNetworkIdle总是超时
	NetworkIdleFails bool
}

// New 创建模拟站点,下载的文件写入downloadDir
func New(downloadDir string) *Site {
	return &Site{
		docs:        make(map[string]string),
		adopted:     make(map[string]bool),
		queries:     make(map[string]int),
		downloadDir: downloadDir,
	}
}

// Handle 注册页面
func (s *Site) Handle(rawURL, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[rawURL] = html
}

// SetDownloadDir 修改下载文件的写入目录
func (s *Site) SetDownloadDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloadDir = dir
}

// FailLaunch 让下一次Launch返回错误
func (s *Site) FailLaunch(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launchErr = err
}

// lookup 查找页面,精确匹配优先,其次忽略查询参数
func (s *Site) lookup(rawURL string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if html, ok := s.docs[rawURL]; ok {
		return html, true
	}
	if u, err := url.Parse(rawURL); err == nil {
		u.RawQuery = ""
		if html, ok := s.docs[u.String()]; ok {
			return html, true
		}
	}
	return "", false
}

// Launch 实现 browser.Launcher
func (s *Site) Launch() (browser.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.launchErr != nil {
		err := s.launchErr
		s.launchErr = nil
		return nil, err
	}
	s.closed = false
	return s, nil
}

// Pages 实现 browser.Browser
func (s *Site) Pages() ([]browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, browser.ErrBrowserClosed
	}
	result := make([]browser.Page, 0, len(s.pages))
	for _, p := range s.pages {
		result = append(result, p)
	}
	return result, nil
}

// NewPage 实现 browser.Browser
func (s *Site) NewPage() (browser.Page, error) {
	p, err := s.open("about:blank")
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.adopted[p.id] = true
	s.mu.Unlock()
	return p, nil
}

// Adopt 实现 browser.Browser
func (s *Site) Adopt(p browser.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adopted[p.ID()] = true
	return nil
}

// Close 实现 browser.Browser
func (s *Site) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	if s.closed {
		return nil
	}
	s.closed = true
	s.pages = nil
	return nil
}

// OpenTab 模拟站点自行打开新标签页
func (s *Site) OpenTab(rawURL string) (*Page, error) {
	return s.open(rawURL)
}

// Adopted 标签页是否已应用指纹
func (s *Site) Adopted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adopted[id]
}

// QueryCount 某个选择器表达式被查询的次数
func (s *Site) QueryCount(expr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[expr]
}

// CloseCount Close被调用的次数
func (s *Site) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

// Closed 浏览器是否已关闭
func (s *Site) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// PageCount 当前打开的标签页数
func (s *Site) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

func (s *Site) countQuery(expr string) {
	s.mu.Lock()
	s.queries[expr]++
	s.mu.Unlock()
}

func (s *Site) open(rawURL string) (*Page, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, browser.ErrBrowserClosed
	}
	s.nextID++
	p := &Page{site: s, id: fmt.Sprintf("tab-%d", s.nextID)}
	s.pages = append(s.pages, p)
	s.mu.Unlock()

	if err := p.load(rawURL); err != nil {
		s.remove(p)
		return nil, err
	}
	return p, nil
}

// openLater 延迟打开新标签页,模拟响应慢的弹出窗口
func (s *Site) openLater(rawURL string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		_, _ = s.open(rawURL)
	})
}

func (s *Site) remove(p *Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.pages {
		if existing == p {
			s.pages = append(s.pages[:i], s.pages[i+1:]...)
			return
		}
	}
}

var errNotFound = errors.New("页面不存在")

// resolve 解析相对地址
func resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
