package simsite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/RecoveryAshes/cnkifetch/internal/browser"
)

// Page 模拟标签页
type Page struct {
	site *Site
	id   string

	mu       sync.Mutex
	url      string
	doc      *goquery.Document
	scrolled bool
	pending  *pendingDownload
	closed   bool
}

type pendingDownload struct {
	name    string
	content string
	deny    string
}

// load 加载页面内容
func (p *Page) load(rawURL string) error {
	content := "<html><head><title></title></head><body></body></html>"
	if rawURL != "about:blank" {
		found, ok := p.site.lookup(rawURL)
		if !ok {
			return fmt.Errorf("%w: %s", errNotFound, rawURL)
		}
		content = found
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return fmt.Errorf("解析页面失败: %w", err)
	}

	p.mu.Lock()
	p.url = rawURL
	p.doc = doc
	p.scrolled = false
	p.mu.Unlock()
	return nil
}

func (p *Page) document() (*goquery.Document, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc, p.scrolled
}

func (p *Page) ID() string { return p.id }

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Title() string {
	doc, _ := p.document()
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func (p *Page) Navigate(rawURL string, _ time.Duration) error {
	return p.load(resolve(p.URL(), rawURL))
}

func (p *Page) WaitLoad(time.Duration) error { return nil }

func (p *Page) WaitNetworkIdle(timeout time.Duration) error {
	if p.site.NetworkIdleFails {
		return fmt.Errorf("%w: 等待网络空闲超过 %s", browser.ErrTimeout, timeout)
	}
	return nil
}

func (p *Page) Query(sel browser.Selector) ([]browser.Element, error) {
	p.site.countQuery(sel.Expr)
	doc, _ := p.document()
	return p.query(doc.Selection, sel)
}

// query 在selection范围内执行CSS或XPath查询
func (p *Page) query(scope *goquery.Selection, sel browser.Selector) ([]browser.Element, error) {
	var nodes []*html.Node
	switch sel.Kind {
	case browser.KindXPath:
		for _, root := range scope.Nodes {
			found, err := htmlquery.QueryAll(root, sel.Expr)
			if err != nil {
				return nil, fmt.Errorf("XPath语法错误 %s: %w", sel.Expr, err)
			}
			nodes = append(nodes, found...)
		}
	default:
		nodes = scope.Find(sel.Expr).Nodes
	}

	result := make([]browser.Element, 0, len(nodes))
	for _, n := range nodes {
		if n.Type != html.ElementNode {
			continue
		}
		result = append(result, &Element{page: p, node: n})
	}
	return result, nil
}

func (p *Page) ScrollHalf() error {
	p.mu.Lock()
	p.scrolled = true
	p.mu.Unlock()
	return nil
}

func (p *Page) Screenshot(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("simsite screenshot: "+p.URL()), 0644)
}

func (p *Page) ExpectDownload(_ time.Duration, trigger func() error) (*browser.Download, error) {
	p.mu.Lock()
	p.pending = nil
	p.mu.Unlock()

	if err := trigger(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	if pending == nil {
		return nil, browser.ErrNoDownload
	}
	if pending.deny != "" {
		return nil, fmt.Errorf("下载被拒绝: %s", pending.deny)
	}

	p.site.mu.Lock()
	dir := p.site.downloadDir
	p.site.mu.Unlock()

	path := filepath.Join(dir, uuid.New().String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(pending.content), 0644); err != nil {
		return nil, err
	}
	return &browser.Download{Path: path, SuggestedFilename: pending.name, URL: p.URL()}, nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	p.site.remove(p)
	return nil
}
