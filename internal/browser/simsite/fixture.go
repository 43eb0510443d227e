package simsite

import (
	"fmt"
	"html"
	"strings"

	"github.com/RecoveryAshes/cnkifetch/internal/models"
)

// HomeURL 模拟站点首页
const HomeURL = "https://kc.cnki.net/"

// 详情页的下载方式
const (
	FormatPDF  = "pdf"
	FormatCAJ  = "caj"
	FormatDeny = "deny" // 点击后提示需要付费
	FormatNone = "none" // 没有下载按钮
)

// Paper 模拟检索结果中的一行
type Paper struct {
	Title   string // 为空时该行没有标题链接
	Authors string
	Source  string
	Year    string
	NoLink  bool   // 标题不带详情页链接
	Format  string // 默认 FormatPDF
}

// CNKIOptions 模拟知网检索流程的选项
type CNKIOptions struct {
	PageSize       int  // 每页行数,默认20
	CategoryNewTab bool // 文献类型在新标签页打开
	SearchNewTab   bool // 检索结果在新标签页打开
	Papers         []Paper
}

// NewCNKI 创建模拟知网站点: 首页 → 文献类型页 → 检索结果(分页) → 详情页
func NewCNKI(downloadDir string, opts CNKIOptions) *Site {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	s := New(downloadDir)

	var nav strings.Builder
	for i, c := range models.AllCategories {
		target := ""
		if opts.CategoryNewTab {
			target = ` target="_blank"`
		}
		fmt.Fprintf(&nav, `<li><a href="/category/%d"%s>%s</a></li>`, i, target, c)
	}
	s.Handle(HomeURL, page("中国知网", `<ul class="nav">`+nav.String()+`</ul>`))

	searchTarget := ""
	if opts.SearchNewTab {
		searchTarget = ` data-target="_blank"`
	}
	for i, c := range models.AllCategories {
		s.Handle(fmt.Sprintf("%scategory/%d", HomeURL, i), page(string(c)+" - 中国知网",
			fmt.Sprintf(`<input type="text" class="n-input__input" placeholder="中文文献、外文文献" data-submit="/search?q={q}"%s>`, searchTarget)))
	}

	pages := (len(opts.Papers) + opts.PageSize - 1) / opts.PageSize
	if pages == 0 {
		pages = 1
	}
	for p := 0; p < pages; p++ {
		start := p * opts.PageSize
		end := min(start+opts.PageSize, len(opts.Papers))

		var rows strings.Builder
		for i := start; i < end; i++ {
			rows.WriteString(row(i+1, opts.Papers[i]))
			s.Handle(fmt.Sprintf("%sdetail/%d", HomeURL, i+1), detail(opts.Papers[i]))
		}

		next := ""
		if p+1 < pages {
			next = fmt.Sprintf(`<a id="PageNext" href="/search/page/%d">下一页</a>`, p+2)
		}
		body := `<table><tbody class="n-data-table-tbody">` + rows.String() + `</tbody></table>` + next

		url := HomeURL + "search"
		if p > 0 {
			url = fmt.Sprintf("%ssearch/page/%d", HomeURL, p+1)
		}
		s.Handle(url, page("检索结果 - 中国知网", body))
	}
	return s
}

func page(title, body string) string {
	return "<html><head><title>" + html.EscapeString(title) + "</title></head><body>" + body + "</body></html>"
}

func row(n int, p Paper) string {
	title := ""
	switch {
	case p.Title == "":
	case p.NoLink:
		title = `<a class="title">` + html.EscapeString(p.Title) + `</a>`
	default:
		title = fmt.Sprintf(`<a class="title" href="/detail/%d" target="_blank">%s</a>`, n, html.EscapeString(p.Title))
	}
	return fmt.Sprintf(`<tr><td>%s</td><td class="author">%s</td><td class="source">%s</td><td class="date">%s</td></tr>`,
		title, html.EscapeString(p.Authors), html.EscapeString(p.Source), html.EscapeString(p.Year))
}

func detail(p Paper) string {
	name := html.EscapeString(p.Title)
	var button string
	switch p.Format {
	case FormatCAJ:
		button = fmt.Sprintf(`<a data-download="%s.caj" data-content="CAJ %s">CAJ下载</a>`, name, name)
	case FormatDeny:
		button = `<button data-deny="该文献需要付费购买后下载">PDF下载</button>`
	case FormatNone:
		button = `<p>暂无全文</p>`
	default:
		button = fmt.Sprintf(`<button data-download="%s.pdf" data-content="%%PDF-1.4 %s"><span class="n-button__content">PDF下载</span></button>`, name, name)
	}
	return page(p.Title, `<h1>`+name+`</h1>`+button)
}
