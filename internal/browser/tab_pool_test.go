package browser_test

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

func launchSite(t *testing.T) (*simsite.Site, browser.Browser) {
	t.Helper()
	site := simsite.New(t.TempDir())
	b, err := site.Launch()
	require.NoError(t, err)
	return site, b
}

func TestTabPoolReusesReleasedTabs(t *testing.T) {
	site, b := launchSite(t)
	pool := browser.NewTabPool(b, 2, nil, zerolog.Nop())
	ctx := context.Background()

	p1, err := pool.Acquire(ctx)
	require.NoError(t, err)
	p2, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, p1.ID(), p2.ID())
	assert.Equal(t, 2, pool.Size())
	assert.True(t, site.Adopted(p1.ID()), "新标签页需要应用指纹")

	// 达到上限后阻塞
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	pool.Release(p1)
	p3, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, p1.ID(), p3.ID())
	assert.Equal(t, "about:blank", p3.URL())

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())
	assert.Equal(t, 0, site.PageCount())

	_, err = pool.Acquire(ctx)
	assert.Error(t, err)
}

func TestTabPoolReleaseAfterClose(t *testing.T) {
	site, b := launchSite(t)
	pool := browser.NewTabPool(b, 1, nil, zerolog.Nop())

	p, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, pool.Close())

	pool.Release(p)
	assert.Equal(t, 0, site.PageCount())
	assert.Equal(t, 0, pool.Size())
}
