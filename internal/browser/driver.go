package browser

import (
	"errors"
	"time"
)

var (
	ErrBrowserClosed   = errors.New("浏览器已关闭")
	ErrDownloadTimeout = errors.New("等待下载超时")
	ErrNoDownload      = errors.New("点击后未触发下载")
)

// SelectorKind 选择器语法
type SelectorKind string

const (
	KindCSS   SelectorKind = "css"
	KindXPath SelectorKind = "xpath"
)

// Selector 页面元素选择器
type Selector struct {
	Kind SelectorKind
	Expr string
}

// CSS 创建CSS选择器
func CSS(expr string) Selector { return Selector{Kind: KindCSS, Expr: expr} }

// XPath 创建XPath选择器
func XPath(expr string) Selector { return Selector{Kind: KindXPath, Expr: expr} }

func (s Selector) String() string {
	return string(s.Kind) + ":" + s.Expr
}

// Element 页面元素句柄
type Element interface {
	// Text 元素的可见文本(innerText)
	Text() (string, error)
	Visible() (bool, error)
	// Attribute 读取属性,不存在时返回空字符串
	Attribute(name string) (string, error)
	Click() error
	ScrollIntoView() error
	// Fill 清空后输入文本
	Fill(text string) error
	PressEnter() error
	// Query 在元素内部查找,不等待
	Query(sel Selector) ([]Element, error)
}

// Download 已完成的下载
type Download struct {
	Path              string // 浏览器写入的临时文件
	SuggestedFilename string
	URL               string
}

// Page 一个标签页
type Page interface {
	// ID 标签页标识,同一标签页多次获取保持不变
	ID() string
	URL() string
	Title() string
	Navigate(url string, timeout time.Duration) error
	WaitLoad(timeout time.Duration) error
	WaitNetworkIdle(timeout time.Duration) error
	// Query 在页面中查找,不等待
	Query(sel Selector) ([]Element, error)
	// ScrollHalf 滚动到页面一半高度,触发懒加载内容
	ScrollHalf() error
	Screenshot(path string) error
	// ExpectDownload 执行trigger并等待本标签页触发的下载完成
	ExpectDownload(timeout time.Duration, trigger func() error) (*Download, error)
	Close() error
}

// Browser 浏览器会话
type Browser interface {
	// Pages 当前所有标签页,按打开顺序
	Pages() ([]Page, error)
	NewPage() (Page, error)
	// Adopt 对不是由NewPage创建的标签页应用指纹配置
	Adopt(p Page) error
	Close() error
}

// Launcher 创建浏览器会话
type Launcher interface {
	Launch() (Browser, error)
}
