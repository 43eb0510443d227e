package acquire

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RecoveryAshes/cnkifetch/internal/browser/simsite"
)

// sevenRows 7行结果,第3行和第6行没有标题
func sevenRows() []simsite.Paper {
	rows := papers("论文一", "论文二", "", "论文三", "论文四", "", "论文五")
	rows[2].Authors = "佚名"
	rows[5].Authors = "佚名"
	return rows
}

func TestExtractCurrentPage(t *testing.T) {
	site := simsite.NewCNKI(t.TempDir(), simsite.CNKIOptions{PageSize: 4, Papers: sevenRows()})
	s, _ := startSession(t, site)
	searchResults(t, s, "人工智能")

	e := NewExtractor(s, zerolog.Nop())
	first, err := e.ExtractCurrentPage()
	require.NoError(t, err)
	require.Len(t, first, 3)

	assert.Equal(t, "论文一", first[0].Title)
	assert.Equal(t, "张三", first[0].Authors)
	assert.Equal(t, "清华大学", first[0].Source)
	assert.Equal(t, "2023", first[0].Year)
	assert.Equal(t, "https://kc.cnki.net/detail/1", first[0].DetailURL)
	assert.Equal(t, "https://kc.cnki.net/detail/4", first[2].DetailURL)

	again, err := e.ExtractCurrentPage()
	require.NoError(t, err)
	assert.Equal(t, first, again, "同一页面重复提取结果应相同")
}

func TestCollectUpTo(t *testing.T) {
	tests := []struct {
		name   string
		want   int
		titles []string
	}{
		{"跨页截断", 5, []string{"论文一", "论文二", "论文三", "论文四", "论文五"}},
		{"第一页内截断", 2, []string{"论文一", "论文二"}},
		{"结果不足", 10, []string{"论文一", "论文二", "论文三", "论文四", "论文五"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := simsite.NewCNKI(t.TempDir(), simsite.CNKIOptions{PageSize: 4, Papers: sevenRows()})
			s, _ := startSession(t, site)
			searchResults(t, s, "人工智能")

			records, err := NewExtractor(s, zerolog.Nop()).CollectUpTo(context.Background(), tt.want)
			require.NoError(t, err)

			titles := make([]string, 0, len(records))
			for _, r := range records {
				titles = append(titles, r.Title)
			}
			assert.Equal(t, tt.titles, titles)
		})
	}
}

func TestGoToNextPageStopsOnLastPage(t *testing.T) {
	site := simsite.NewCNKI(t.TempDir(), simsite.CNKIOptions{PageSize: 4, Papers: sevenRows()})
	s, _ := startSession(t, site)
	searchResults(t, s, "人工智能")

	e := NewExtractor(s, zerolog.Nop())
	assert.True(t, e.GoToNextPage(context.Background()))
	assert.Equal(t, "https://kc.cnki.net/search/page/2", s.Current().URL())
	assert.False(t, e.GoToNextPage(context.Background()))
}

func TestNormalizeDetailURL(t *testing.T) {
	tests := []struct {
		name    string
		href    string
		pageURL string
		want    string
	}{
		{"绝对地址", "https://kns.cnki.net/kcms2/article/abstract?v=1", "https://kc.cnki.net/search", "https://kns.cnki.net/kcms2/article/abstract?v=1"},
		{"kc相对地址", "/detail/1", "https://kc.cnki.net/search", "https://kc.cnki.net/detail/1"},
		{"kns相对地址", "kcms/detail?id=2", "https://kns.cnki.net/kns8s/search", "https://kns.cnki.net/kcms/detail?id=2"},
		{"协议相对地址", "//kc.cnki.net/detail/3", "https://kc.cnki.net/", "https://kc.cnki.net/detail/3"},
		{"脚本链接", "javascript:void(0)", "https://kc.cnki.net/", ""},
		{"空地址", "  ", "https://kc.cnki.net/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDetailURL(tt.href, tt.pageURL))
		})
	}
}
