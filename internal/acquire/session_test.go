package acquire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RecoveryAshes/cnkifetch/internal/browser/simsite"
	"github.com/RecoveryAshes/cnkifetch/internal/models"
)

func TestSessionSearchFlow(t *testing.T) {
	tests := []struct {
		name string
		opts simsite.CNKIOptions
	}{
		{"原地跳转", simsite.CNKIOptions{Papers: papers("深度学习")}},
		{"新标签页打开", simsite.CNKIOptions{CategoryNewTab: true, SearchNewTab: true, Papers: papers("深度学习")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := simsite.NewCNKI(t.TempDir(), tt.opts)
			s, _ := startSession(t, site)
			searchResults(t, s, "人工智能")

			current := s.Current()
			assert.True(t, strings.HasPrefix(current.URL(), "https://kc.cnki.net/search?q="), current.URL())
			assert.True(t, site.Adopted(current.ID()))
			assert.Equal(t, "检索结果 - 中国知网", current.Title())
		})
	}
}

func TestSessionSelectUnknownCategory(t *testing.T) {
	site := simsite.NewCNKI(t.TempDir(), simsite.CNKIOptions{})
	s, _ := startSession(t, site)
	require.NoError(t, s.NavigateHome(context.Background()))

	err := s.SelectCategory(context.Background(), models.DocumentCategory("外文期刊"))
	assert.Equal(t, models.KindCategoryNotFound, models.KindOf(err))
}

func TestSessionCategoryLinkMissing(t *testing.T) {
	site := simsite.New(t.TempDir())
	site.Handle(simsite.HomeURL, `<html><body><a href="/x">报纸</a></body></html>`)
	s, screenshots := startSession(t, site)
	require.NoError(t, s.NavigateHome(context.Background()))

	err := s.SelectCategory(context.Background(), models.CategoryPatent)
	require.Error(t, err)
	assert.Equal(t, models.KindElementUnresolvable, models.KindOf(err))

	matches, _ := filepath.Glob(filepath.Join(screenshots, "debug_category_*.png"))
	assert.Len(t, matches, 1)
}

func TestSessionSearchWithoutResults(t *testing.T) {
	site := simsite.NewCNKI(t.TempDir(), simsite.CNKIOptions{})
	s, screenshots := startSession(t, site)
	searchResults(t, s, "不存在的主题")

	matches, _ := filepath.Glob(filepath.Join(screenshots, "debug_search_result_*.png"))
	assert.Len(t, matches, 1, "没有结果时保存截图但不报错")
}

func TestSessionNavigateHomeFailure(t *testing.T) {
	site := simsite.New(t.TempDir())
	s, _ := startSession(t, site)

	err := s.NavigateHome(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.KindUnclassified, models.KindOf(err))
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	site := simsite.NewCNKI(t.TempDir(), simsite.CNKIOptions{})
	s, _ := startSession(t, site)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, site.Closed())
	assert.Equal(t, 1, site.CloseCount())
	assert.Nil(t, s.Current())
	assert.ErrorIs(t, s.NavigateHome(context.Background()), ErrNotLaunched)
}

func TestSessionLaunchFailure(t *testing.T) {
	site := simsite.New(t.TempDir())
	site.FailLaunch(errors.New("找不到Chrome"))

	s := NewSession(site, SessionConfig{HomeURL: simsite.HomeURL, Table: defaultTable(t), Acquire: fastConfig()}, zerolog.Nop())
	err := s.Launch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "找不到Chrome")
	require.NoError(t, s.Close())
}

func TestSessionScreenshotsDisabled(t *testing.T) {
	site := simsite.New(t.TempDir())
	site.Handle(simsite.HomeURL, `<html><body></body></html>`)

	cfg := fastConfig()
	cfg.Download.DebugScreenshots = false
	dir := t.TempDir()
	s := NewSession(site, SessionConfig{HomeURL: simsite.HomeURL, Table: defaultTable(t), Acquire: cfg, ScreenshotDir: dir}, zerolog.Nop())
	require.NoError(t, s.Launch(context.Background()))
	defer s.Close()
	require.NoError(t, s.NavigateHome(context.Background()))

	assert.Error(t, s.SelectCategory(context.Background(), models.CategoryJournal))
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}
