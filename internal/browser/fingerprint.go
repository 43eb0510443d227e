package browser

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// DefaultUserAgent 默认User-Agent
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

// maskingScript 在stealth基础上补充的特征屏蔽脚本
const maskingScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
window.chrome = window.chrome || { runtime: {} };
if (window.navigator.permissions && window.navigator.permissions.query) {
	const originalQuery = window.navigator.permissions.query;
	window.navigator.permissions.query = (parameters) => (
		parameters.name === 'notifications' ?
			Promise.resolve({ state: Notification.permission }) :
			originalQuery(parameters)
	);
}
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
Object.defineProperty(navigator, 'languages', { get: () => ['zh-CN', 'zh', 'en'] });
`

// Fingerprint 浏览器指纹配置,同一会话内所有标签页保持一致
type Fingerprint struct {
	UserAgent      string
	AcceptLanguage string
	Locale         string
	Timezone       string
	ViewportWidth  int
	ViewportHeight int
	ExtraHeaders   http.Header
}

// DefaultFingerprint 默认指纹(简体中文 Windows Chrome)
func DefaultFingerprint() Fingerprint {
	return Fingerprint{
		UserAgent:      DefaultUserAgent,
		AcceptLanguage: "zh-CN,zh;q=0.9,en;q=0.8",
		Locale:         "zh-CN",
		Timezone:       "Asia/Shanghai",
		ViewportWidth:  1366,
		ViewportHeight: 768,
	}
}

// headerPairs 转换为rod SetExtraHeaders需要的 [k1, v1, k2, v2...]
func (f Fingerprint) headerPairs() []string {
	names := make([]string, 0, len(f.ExtraHeaders))
	for name := range f.ExtraHeaders {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names)*2)
	for _, name := range names {
		// User-Agent 由 SetUserAgent 统一设置
		if http.CanonicalHeaderKey(name) == "User-Agent" {
			continue
		}
		pairs = append(pairs, name, f.ExtraHeaders.Get(name))
	}
	return pairs
}

// apply 对标签页应用指纹
func (f Fingerprint) apply(page *rod.Page) error {
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		return fmt.Errorf("注入stealth脚本失败: %w", err)
	}
	if _, err := page.EvalOnNewDocument(maskingScript); err != nil {
		return fmt.Errorf("注入特征屏蔽脚本失败: %w", err)
	}

	if f.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      f.UserAgent,
			AcceptLanguage: f.AcceptLanguage,
		}); err != nil {
			return fmt.Errorf("设置User-Agent失败: %w", err)
		}
	}

	if f.ViewportWidth > 0 && f.ViewportHeight > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             f.ViewportWidth,
			Height:            f.ViewportHeight,
			DeviceScaleFactor: 1,
		}); err != nil {
			return fmt.Errorf("设置视口失败: %w", err)
		}
	}

	if f.Timezone != "" {
		if err := (proto.EmulationSetTimezoneOverride{TimezoneID: f.Timezone}).Call(page); err != nil {
			return fmt.Errorf("设置时区失败: %w", err)
		}
	}
	if f.Locale != "" {
		if err := (proto.EmulationSetLocaleOverride{Locale: f.Locale}).Call(page); err != nil {
			return fmt.Errorf("设置语言区域失败: %w", err)
		}
	}

	if pairs := f.headerPairs(); len(pairs) > 0 {
		if _, err := page.SetExtraHeaders(pairs); err != nil {
			return fmt.Errorf("设置额外请求头失败: %w", err)
		}
	}
	return nil
}
