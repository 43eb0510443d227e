package acquire

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/RecoveryAshes/cnkifetch/internal/browser"
	"github.com/RecoveryAshes/cnkifetch/internal/locator"
	"github.com/RecoveryAshes/cnkifetch/internal/models"
)

// 详情页相对地址的补全前缀
const (
	KCBaseURL  = "https://kc.cnki.net"
	KNSBaseURL = "https://kns.cnki.net"
)

// Extractor 从结果列表提取文献记录
type Extractor struct {
	session *Session
	logger  zerolog.Logger
}

// NewExtractor 创建提取器
func NewExtractor(session *Session, logger zerolog.Logger) *Extractor {
	return &Extractor{session: session, logger: logger}
}

// ExtractCurrentPage 提取当前页的所有记录
// 找不到标题的行直接跳过,其他字段缺失不影响该行
func (e *Extractor) ExtractCurrentPage() ([]models.Record, error) {
	page := e.session.Current()
	if page == nil {
		return nil, ErrNotLaunched
	}
	table := e.session.Table()

	rows, err := page.Query(browser.CSS(table.ResultRows.Primary))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 && table.ResultRows.Alternate != "" {
		e.logger.Debug().Msg("主选择器没有结果行,使用备用选择器")
		if rows, err = page.Query(browser.CSS(table.ResultRows.Alternate)); err != nil {
			return nil, err
		}
	}

	records := make([]models.Record, 0, len(rows))
	for i, row := range rows {
		record, ok := e.extractRow(page.URL(), row)
		if !ok {
			e.logger.Debug().Int("row", i+1).Msg("跳过没有标题的行")
			continue
		}
		records = append(records, record)
	}

	e.logger.Info().Int("rows", len(rows)).Int("records", len(records)).Msg("📊 提取当前页结果")
	return records, nil
}

func (e *Extractor) extractRow(pageURL string, row browser.Element) (models.Record, bool) {
	fields := e.session.Table().Fields
	resolver := e.session.Resolver()

	titleEl, err := resolver.ResolveIn(row, fields.Title, "")
	if err != nil {
		return models.Record{}, false
	}
	title := cleanText(titleEl)
	if title == "" {
		return models.Record{}, false
	}

	href, _ := titleEl.Attribute("href")
	return models.Record{
		Title:     title,
		Authors:   e.field(row, fields.Authors),
		Source:    e.field(row, fields.Source),
		Year:      e.field(row, fields.Year),
		DetailURL: NormalizeDetailURL(href, pageURL),
	}, true
}

// field 可选字段,找不到时为空
func (e *Extractor) field(row browser.Element, strategies []locator.Strategy) string {
	if len(strategies) == 0 {
		return ""
	}
	el, err := e.session.Resolver().ResolveIn(row, strategies, "")
	if err != nil {
		return ""
	}
	return cleanText(el)
}

// GoToNextPage 点击下一页,没有可见的下一页控件时返回false
func (e *Extractor) GoToNextPage(ctx context.Context) bool {
	page := e.session.Current()
	table := e.session.Table()
	if page == nil || len(table.NextPage) == 0 {
		return false
	}

	next, err := e.session.Resolver().ResolveIn(page, table.NextPage, "")
	if err != nil {
		e.logger.Info().Msg("没有下一页")
		return false
	}

	err = e.session.Act(ctx, nil, next.Click)
	if err != nil {
		e.logger.Warn().Err(err).Msg("⚠️  翻页失败")
		return false
	}
	if err := sleep(ctx, models.Ms(e.session.Config().Acquire.Waits.ContentLoad)); err != nil {
		return false
	}
	return true
}

// CollectUpTo 逐页提取直到凑够n条,或某页没有记录,或无法翻页
func (e *Extractor) CollectUpTo(ctx context.Context, n int) ([]models.Record, error) {
	records := make([]models.Record, 0, n)
	for pageNo := 1; len(records) < n; pageNo++ {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		found, err := e.ExtractCurrentPage()
		if err != nil {
			return records, err
		}
		if len(found) == 0 {
			e.logger.Info().Int("page", pageNo).Msg("当前页没有记录,停止提取")
			break
		}
		if remaining := n - len(records); len(found) > remaining {
			found = found[:remaining]
		}
		records = append(records, found...)

		if len(records) >= n || !e.GoToNextPage(ctx) {
			break
		}
	}

	e.logger.Info().Int("records", len(records)).Int("wanted", n).Msg("✅ 文献列表提取完成")
	return records, nil
}

// NormalizeDetailURL 补全详情页地址
// 当前页在 kc.cnki.net 时使用 kc 前缀,否则使用 kns 前缀
func NormalizeDetailURL(href, pageURL string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}

	base := KNSBaseURL
	if strings.Contains(pageURL, "kc.cnki.net") {
		base = KCBaseURL
	}
	return base + "/" + strings.TrimPrefix(href, "/")
}

func cleanText(el browser.Element) string {
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}
