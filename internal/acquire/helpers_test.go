package acquire

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/RecoveryAshes/cnkifetch/internal/browser/simsite"
	"github.com/RecoveryAshes/cnkifetch/internal/locator"
	"github.com/RecoveryAshes/cnkifetch/internal/models"
)

// fastConfig 测试用的短超时配置
func fastConfig() models.AcquireConfig {
	return models.AcquireConfig{
		Timeouts: models.TimeoutConfig{
			PageLoad:       1000,
			NetworkIdle:    100,
			Selector:       20,
			SelectorRetry:  20,
			DownloadButton: 20,
			ElementFind:    50,
			Download:       1000,
			ResultWait:     50,
		},
		Waits: models.WaitConfig{
			PageSwitch:    1,
			Scroll:        1,
			ContentLoad:   1,
			Recheck:       20,
			BatchCooldown: 1,
			PollInterval:  5,
		},
		Download: models.DownloadConfig{
			MaxConcurrent:     2,
			RetryTimes:        0,
			MaxFilenameLength: 200,
			DebugScreenshots:  true,
		},
	}
}

func defaultTable(t *testing.T) *locator.Table {
	t.Helper()
	table, err := locator.Load(locator.DefaultVersion)
	require.NoError(t, err)
	return table
}

// startSession 启动会话并在测试结束时关闭
func startSession(t *testing.T, site *simsite.Site) (*Session, string) {
	t.Helper()
	screenshots := t.TempDir()
	s := NewSession(site, SessionConfig{
		HomeURL:       simsite.HomeURL,
		Table:         defaultTable(t),
		Acquire:       fastConfig(),
		ScreenshotDir: screenshots,
	}, zerolog.Nop())
	require.NoError(t, s.Launch(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s, screenshots
}

// searchResults 完成首页、文献类型、检索三步
func searchResults(t *testing.T, s *Session, term string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.NavigateHome(ctx))
	require.NoError(t, s.SelectCategory(ctx, models.CategoryDissertation))
	require.NoError(t, s.PerformSearch(ctx, term))
}

// papers 生成n篇可下载的文献
func papers(titles ...string) []simsite.Paper {
	result := make([]simsite.Paper, 0, len(titles))
	for _, title := range titles {
		result = append(result, simsite.Paper{Title: title, Authors: "张三", Source: "清华大学", Year: "2023"})
	}
	return result
}
