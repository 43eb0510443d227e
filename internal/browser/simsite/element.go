package simsite

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/RecoveryAshes/cnkifetch/internal/browser"
)

// Element 模拟元素
type Element struct {
	page *Page
	node *html.Node
}

func (e *Element) selection() *goquery.Selection {
	doc, _ := e.page.document()
	return doc.FindNodes(e.node)
}

func (e *Element) attr(name string) (string, bool) {
	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (e *Element) Text() (string, error) {
	return e.selection().Text(), nil
}

// Visible 元素及其祖先都未隐藏时可见
func (e *Element) Visible() (bool, error) {
	_, scrolled := e.page.document()
	for n := e.node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		for _, a := range n.Attr {
			switch a.Key {
			case "hidden":
				return false, nil
			case "style":
				style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
				if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
					return false, nil
				}
			case "data-lazy":
				if !scrolled {
					return false, nil
				}
			}
		}
	}
	return true, nil
}

func (e *Element) Attribute(name string) (string, error) {
	v, _ := e.attr(name)
	return v, nil
}

// Click 按data-*属性和链接模拟点击效果
func (e *Element) Click() error {
	if name, ok := e.attr("data-download"); ok {
		content, _ := e.attr("data-content")
		if content == "" {
			content = "%PDF-1.4 simulated"
		}
		e.page.mu.Lock()
		e.page.pending = &pendingDownload{name: name, content: content}
		e.page.mu.Unlock()
		return nil
	}
	if deny, ok := e.attr("data-deny"); ok {
		e.page.mu.Lock()
		e.page.pending = &pendingDownload{deny: deny}
		e.page.mu.Unlock()
		return nil
	}

	href, ok := e.attr("href")
	if !ok || href == "" || strings.HasPrefix(href, "javascript:") {
		return nil
	}
	return e.follow(resolve(e.page.URL(), href))
}

// follow 在当前页或新标签页打开地址
func (e *Element) follow(target string) error {
	if delay, ok := e.attr("data-open-after"); ok {
		d, err := time.ParseDuration(delay)
		if err != nil {
			return err
		}
		e.page.site.openLater(target, d)
		return nil
	}
	if t, _ := e.attr("target"); t == "_blank" {
		_, err := e.page.site.open(target)
		return err
	}
	if t, _ := e.attr("data-target"); t == "_blank" {
		_, err := e.page.site.open(target)
		return err
	}
	return e.page.load(target)
}

func (e *Element) ScrollIntoView() error { return nil }

func (e *Element) Fill(text string) error {
	for i, a := range e.node.Attr {
		if a.Key == "value" {
			e.node.Attr[i].Val = text
			return nil
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: "value", Val: text})
	return nil
}

// PressEnter 输入框带data-submit时提交检索
func (e *Element) PressEnter() error {
	tmpl, ok := e.attr("data-submit")
	if !ok {
		return nil
	}
	value, _ := e.attr("value")
	target := strings.ReplaceAll(tmpl, "{q}", url.QueryEscape(value))
	return e.follow(resolve(e.page.URL(), target))
}

func (e *Element) Query(sel browser.Selector) ([]browser.Element, error) {
	e.page.site.countQuery(sel.Expr)
	return e.page.query(e.selection(), sel)
}
