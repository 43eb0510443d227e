package core

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RecoveryAshes/cnkifetch/internal/browser"
	"github.com/RecoveryAshes/cnkifetch/internal/models"
)

func TestHeaderManagerPriority(t *testing.T) {
	hm, err := NewHeaderManager(
		map[string]string{"Referer": "https://www.cnki.net/", "Accept-Language": "en-US"},
		[]string{"Accept-Language: zh-TW", "X-Trace: 1"},
		zerolog.Nop(),
	)
	require.NoError(t, err)

	headers, err := hm.GetHeaders()
	require.NoError(t, err)
	assert.Equal(t, "zh-TW", headers.Get("Accept-Language"), "命令行优先于配置文件")
	assert.Equal(t, "https://www.cnki.net/", headers.Get("Referer"))
	assert.Equal(t, "1", headers.Get("X-Trace"))
}

func TestHeaderManagerDefaults(t *testing.T) {
	hm, err := NewHeaderManager(nil, nil, zerolog.Nop())
	require.NoError(t, err)

	headers, err := hm.GetHeaders()
	require.NoError(t, err)
	assert.Equal(t, browser.DefaultFingerprint().AcceptLanguage, headers.Get("Accept-Language"))
}

func TestHeaderManagerRejects(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]string
		cli    []string
	}{
		{"配置中覆盖User-Agent", map[string]string{"User-Agent": "curl"}, nil},
		{"命令行设置Cookie", nil, []string{"Cookie: a=b"}},
		{"名称含非法字符", map[string]string{"X Bad": "1"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hm, err := NewHeaderManager(tt.config, tt.cli, zerolog.Nop())
			require.NoError(t, err)
			_, err = hm.GetHeaders()
			var ve *models.ValidationError
			assert.True(t, errors.As(err, &ve), "应返回 ValidationError: %v", err)
		})
	}
}

func TestHeaderManagerBadCLIFormat(t *testing.T) {
	_, err := NewHeaderManager(nil, []string{"no-colon"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestHeaderManagerSafeHeaders(t *testing.T) {
	hm, err := NewHeaderManager(map[string]string{"X-Api-Key": "abcdef123456"}, nil, zerolog.Nop())
	require.NoError(t, err)

	safe := hm.GetSafeHeaders()
	assert.NotEqual(t, "abcdef123456", safe["X-Api-Key"])
}

func TestFingerprintFromHeaders(t *testing.T) {
	hm, err := NewHeaderManager(nil, []string{"Accept-Language: en-US,en;q=0.9", "Referer: https://kc.cnki.net/"}, zerolog.Nop())
	require.NoError(t, err)

	fp, err := Fingerprint(browser.DefaultFingerprint(), hm)
	require.NoError(t, err)
	assert.Equal(t, "en-US,en;q=0.9", fp.AcceptLanguage)
	assert.Equal(t, "https://kc.cnki.net/", fp.ExtraHeaders.Get("Referer"))
	assert.Equal(t, browser.DefaultUserAgent, fp.UserAgent)

	bad, err := NewHeaderManager(nil, []string{"Host: x"}, zerolog.Nop())
	require.NoError(t, err)
	_, err = Fingerprint(browser.DefaultFingerprint(), bad)
	assert.Error(t, err)
}
