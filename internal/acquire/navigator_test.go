package acquire

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RecoveryAshes/cnkifetch/internal/browser"
	"github.com/RecoveryAshes/cnkifetch/internal/browser/simsite"
)

func trackerFor(t *testing.T, site *simsite.Site) (*Tracker, browser.Browser) {
	t.Helper()
	b, err := site.Launch()
	require.NoError(t, err)
	cfg := TrackerConfig{
		Settle:      time.Millisecond,
		Recheck:     60 * time.Millisecond,
		NetworkIdle: 50 * time.Millisecond,
		PageLoad:    50 * time.Millisecond,
	}
	return NewTracker(b, cfg, zerolog.Nop()), b
}

func TestTrackerSwitchesToNewTab(t *testing.T) {
	site := simsite.New(t.TempDir())
	site.Handle(simsite.HomeURL, `<html><body>首页</body></html>`)
	site.Handle("https://kc.cnki.net/search", `<html><body>结果</body></html>`)
	tracker, b := trackerFor(t, site)

	current, err := site.OpenTab(simsite.HomeURL)
	require.NoError(t, err)
	nav, err := Snapshot(b, current)
	require.NoError(t, err)
	assert.Equal(t, 1, nav.CountBefore)

	opened, err := site.OpenTab("https://kc.cnki.net/search?q=ai")
	require.NoError(t, err)

	got, err := tracker.DetectAndSwitch(context.Background(), current, nav, []string{"search"})
	require.NoError(t, err)
	assert.Equal(t, opened.ID(), got.ID())
	assert.True(t, site.Adopted(opened.ID()), "新标签页需要应用指纹")
}

func TestTrackerInPlaceNavigation(t *testing.T) {
	site := simsite.New(t.TempDir())
	site.Handle(simsite.HomeURL, `<html><body><a id="go" href="/category/1">学位论文</a></body></html>`)
	site.Handle("https://kc.cnki.net/category/1", `<html><body>学位论文</body></html>`)
	tracker, b := trackerFor(t, site)

	current, err := site.OpenTab(simsite.HomeURL)
	require.NoError(t, err)
	nav, err := Snapshot(b, current)
	require.NoError(t, err)

	links, err := current.Query(browser.CSS("#go"))
	require.NoError(t, err)
	require.NoError(t, links[0].Click())

	got, err := tracker.DetectAndSwitch(context.Background(), current, nav, nil)
	require.NoError(t, err)
	assert.Equal(t, current.ID(), got.ID())
	assert.Equal(t, "https://kc.cnki.net/category/1", got.URL())
	assert.False(t, site.Adopted(current.ID()), "原有标签页不需要重新应用指纹")
}

func TestTrackerNoChangeKeepsCurrent(t *testing.T) {
	site := simsite.New(t.TempDir())
	site.Handle(simsite.HomeURL, `<html><body>首页</body></html>`)
	site.NetworkIdleFails = true
	tracker, b := trackerFor(t, site)

	current, err := site.OpenTab(simsite.HomeURL)
	require.NoError(t, err)
	nav, err := Snapshot(b, current)
	require.NoError(t, err)

	got, err := tracker.DetectAndSwitch(context.Background(), current, nav, []string{"search"})
	require.NoError(t, err, "等待页面稳定超时不应报错")
	assert.Equal(t, current.ID(), got.ID())
}

func TestTrackerRecheckCatchesSlowTab(t *testing.T) {
	site := simsite.New(t.TempDir())
	site.Handle(simsite.HomeURL, `<html><body><a id="slow" href="/search" target="_blank" data-open-after="20ms">检索</a></body></html>`)
	site.Handle("https://kc.cnki.net/search", `<html><body>结果</body></html>`)
	tracker, b := trackerFor(t, site)

	current, err := site.OpenTab(simsite.HomeURL)
	require.NoError(t, err)
	nav, err := Snapshot(b, current)
	require.NoError(t, err)

	links, err := current.Query(browser.CSS("#slow"))
	require.NoError(t, err)
	require.NoError(t, links[0].Click())
	assert.Equal(t, 1, site.PageCount(), "新标签页应延迟打开")

	got, err := tracker.DetectAndSwitch(context.Background(), current, nav, []string{"search"})
	require.NoError(t, err)
	assert.Equal(t, "https://kc.cnki.net/search", got.URL())
}

func TestTrackerBrowserClosed(t *testing.T) {
	site := simsite.New(t.TempDir())
	site.Handle(simsite.HomeURL, `<html><body>首页</body></html>`)
	tracker, b := trackerFor(t, site)

	current, err := site.OpenTab(simsite.HomeURL)
	require.NoError(t, err)
	nav, err := Snapshot(b, current)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	got, err := tracker.DetectAndSwitch(context.Background(), current, nav, nil)
	assert.ErrorIs(t, err, browser.ErrBrowserClosed)
	assert.Equal(t, current, got)
}

// 多个标签页已存在且操作没有打开新标签页时,按顺序选择目标页
func TestTrackerDecisionOrder(t *testing.T) {
	const (
		searchURL = "https://kc.cnki.net/search?q=1"
		otherURL  = "https://kc.cnki.net/other"
		detailURL = "https://kc.cnki.net/detail/1"
	)

	tests := []struct {
		name  string
		tabs  []string // 当前页最后打开
		hints []string
		// act 在快照之后修改标签页,pages 与 tabs 顺序相同
		act  func(t *testing.T, pages []*simsite.Page)
		want int
	}{
		{
			name:  "关键字不区分大小写",
			tabs:  []string{otherURL, searchURL, simsite.HomeURL},
			hints: []string{"SEARCH"},
			want:  1,
		},
		{
			name: "无关键字时选第一个地址不同的标签页",
			tabs: []string{otherURL, searchURL, simsite.HomeURL},
			want: 0,
		},
		{
			name:  "关键字优先于其他地址不同的标签页",
			tabs:  []string{searchURL, otherURL, simsite.HomeURL},
			hints: []string{"other"},
			want:  1,
		},
		{
			name: "最后打开的标签页地址变化",
			tabs: []string{simsite.HomeURL, simsite.HomeURL},
			act: func(t *testing.T, pages []*simsite.Page) {
				require.NoError(t, pages[1].Navigate(detailURL, time.Second))
			},
			want: 1,
		},
		{
			name: "最后标签页变化优先于当前页跳转",
			tabs: []string{simsite.HomeURL, simsite.HomeURL},
			act: func(t *testing.T, pages []*simsite.Page) {
				require.NoError(t, pages[0].Navigate(otherURL, time.Second))
				require.NoError(t, pages[1].Navigate(detailURL, time.Second))
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := simsite.New(t.TempDir())
			site.Handle(simsite.HomeURL, `<html><body>首页</body></html>`)
			site.Handle("https://kc.cnki.net/search", `<html><body>结果</body></html>`)
			site.Handle(otherURL, `<html><body>其他</body></html>`)
			site.Handle(detailURL, `<html><body>详情</body></html>`)
			tracker, b := trackerFor(t, site)

			pages := make([]*simsite.Page, 0, len(tt.tabs))
			for _, u := range tt.tabs {
				p, err := site.OpenTab(u)
				require.NoError(t, err)
				pages = append(pages, p)
			}
			// 修改标签页的用例以第一个标签页为当前页
			current := pages[len(pages)-1]
			if tt.act != nil {
				current = pages[0]
			}

			nav, err := Snapshot(b, current)
			require.NoError(t, err)
			if tt.act != nil {
				tt.act(t, pages)
			}

			got, err := tracker.DetectAndSwitch(context.Background(), current, nav, tt.hints)
			require.NoError(t, err)
			assert.Equal(t, pages[tt.want].ID(), got.ID())
			assert.False(t, site.Adopted(got.ID()), "已有标签页不需要重新应用指纹")
		})
	}
}
