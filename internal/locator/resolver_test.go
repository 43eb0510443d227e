package locator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RecoveryAshes/cnkifetch/internal/browser"
	"github.com/RecoveryAshes/cnkifetch/internal/browser/simsite"
	"github.com/RecoveryAshes/cnkifetch/internal/models"
)

const home = "https://kc.cnki.net/"

func testConfig() Config {
	return Config{
		SubTimeout:   30 * time.Millisecond,
		RetryTimeout: 30 * time.Millisecond,
		Settle:       time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	}
}

func openPage(t *testing.T, html string) (*simsite.Site, *simsite.Page) {
	t.Helper()
	site := simsite.New(t.TempDir())
	site.Handle(home, html)
	_, err := site.Launch()
	require.NoError(t, err)
	page, err := site.OpenTab(home)
	require.NoError(t, err)
	return site, page
}

func TestResolveStopsAtFirstVerifiedStrategy(t *testing.T) {
	site, page := openPage(t, `<html><body>
		<div class="s2">期刊导航</div>
		<div class="s3">学位论文</div>
		<div class="s4">学位论文</div>
	</body></html>`)

	target := Target{
		Description: "测试",
		Strategies: []Strategy{
			{Name: "S1", Mode: ModeCSS, Selector: ".s1"},
			{Name: "S2", Mode: ModeCSS, Selector: ".s2"},
			{Name: "S3", Mode: ModeCSS, Selector: ".s3"},
			{Name: "S4", Mode: ModeCSS, Selector: ".s4"},
		},
		Expected: "学位论文",
	}

	el, err := New(testConfig()).Resolve(context.Background(), page, target)
	require.NoError(t, err)

	class, err := el.Attribute("class")
	require.NoError(t, err)
	assert.Equal(t, "s3", class)
	assert.Positive(t, site.QueryCount(".s1"))
	assert.Equal(t, 1, site.QueryCount(".s2"), "文本不符时不应继续轮询")
	assert.Zero(t, site.QueryCount(".s4"))
}

func TestResolveSkipsHiddenElements(t *testing.T) {
	_, page := openPage(t, `<html><body>
		<a class="nav" style="display: none">学术期刊</a>
		<div hidden><a class="nav">学术期刊</a></div>
		<a class="nav" id="shown">学术期刊</a>
	</body></html>`)

	el, err := New(testConfig()).Resolve(context.Background(), page, Target{
		Strategies: []Strategy{{Name: "nav", Mode: ModeCSS, Selector: "a.nav"}},
		Expected:   "学术期刊",
	})
	require.NoError(t, err)
	id, _ := el.Attribute("id")
	assert.Equal(t, "shown", id)
}

func TestResolveRecoveryScroll(t *testing.T) {
	site, page := openPage(t, `<html><body>
		<a class="lazy" data-lazy>会议</a>
	</body></html>`)

	cfg := testConfig()
	cfg.SubTimeout = time.Nanosecond

	el, err := New(cfg).Resolve(context.Background(), page, Target{
		Strategies: []Strategy{
			{Name: "第一", Mode: ModeCSS, Selector: "a.lazy"},
			{Name: "第二", Mode: ModeCSS, Selector: "a.other"},
			{Name: "第三", Mode: ModeCSS, Selector: "a.third"},
		},
		Expected: "会议",
	})
	require.NoError(t, err)
	text, _ := el.Text()
	assert.Equal(t, "会议", text)
	assert.Equal(t, 1, site.QueryCount("a.third"), "恢复阶段只重试前两个策略")
}

func TestResolveTextScanFallback(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
		wantID   string
	}{
		{"精确匹配优先", `<a id="a">学位论文库</a><a id="b">学位论文</a>`, "学位论文", "b"},
		{"包含匹配", `<a id="a">标准</a><a id="b">【学位论文】</a>`, "学位论文", "b"},
		{"两字重叠", `<a id="a">报纸</a><a id="b">学位·论文</a>`, "学位论文", "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, page := openPage(t, "<html><body>"+tt.html+"</body></html>")
			el, err := New(testConfig()).Resolve(context.Background(), page, Target{
				Strategies: []Strategy{{Name: "缺失", Mode: ModeCSS, Selector: "a.missing"}},
				Expected:   tt.expected,
				ScanKind:   "a",
			})
			require.NoError(t, err)
			id, _ := el.Attribute("id")
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestResolveNotFound(t *testing.T) {
	_, page := openPage(t, `<html><body><a>报纸</a></body></html>`)

	_, err := New(testConfig()).Resolve(context.Background(), page, Target{
		Description: "文献类型 专利",
		Strategies:  []Strategy{{Name: "缺失", Mode: ModeCSS, Selector: "a.missing"}},
		Expected:    "专利",
		ScanKind:    "a",
	})
	require.Error(t, err)
	assert.Equal(t, models.KindElementUnresolvable, models.KindOf(err))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveHonoursContext(t *testing.T) {
	_, page := openPage(t, `<html><body></body></html>`)
	cfg := testConfig()
	cfg.SubTimeout = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := New(cfg).Resolve(ctx, page, Target{
		Strategies: []Strategy{{Name: "缺失", Mode: ModeCSS, Selector: ".none"}},
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolveTextModesAndXPath(t *testing.T) {
	_, page := openPage(t, `<html><body>
		<button><span class="n-button__content">CAJ下载</span></button>
		<button id="pdf"><span class="n-button__content">PDF下载</span></button>
	</body></html>`)
	r := New(testConfig())

	el, err := r.Resolve(context.Background(), page, Target{
		Strategies: []Strategy{{Name: "PDF", Mode: ModeTextContains, Selector: "button", Text: "PDF下载"}},
	})
	require.NoError(t, err)
	id, _ := el.Attribute("id")
	assert.Equal(t, "pdf", id)

	el, err = r.Resolve(context.Background(), page, Target{
		Strategies: []Strategy{{Name: "XPath", Mode: ModeXPath, Selector: "//span[text()='CAJ下载']"}},
	})
	require.NoError(t, err)
	text, _ := el.Text()
	assert.Equal(t, "CAJ下载", text)
}

func TestResolveIn(t *testing.T) {
	_, page := openPage(t, `<html><body><table><tbody>
		<tr class="row"><td><a class="title" href="/detail/1">深度学习研究</a></td><td>张三</td></tr>
	</tbody></table></body></html>`)
	r := New(testConfig())

	rows, err := page.Query(browser.CSS("tr.row"))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	title, err := r.ResolveIn(rows[0], []Strategy{
		{Name: ".name a", Mode: ModeCSS, Selector: ".name a"},
		{Name: "a.title", Mode: ModeCSS, Selector: "a.title"},
	}, "")
	require.NoError(t, err)
	text, _ := title.Text()
	assert.Equal(t, "深度学习研究", text)

	_, err = r.ResolveIn(rows[0], []Strategy{{Name: ".author", Mode: ModeCSS, Selector: ".author"}}, "")
	assert.Equal(t, models.KindElementUnresolvable, models.KindOf(err))
}
