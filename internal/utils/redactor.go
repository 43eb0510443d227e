package utils

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

const mask = "***"

// SensitiveKeywords 名称(头部名或查询参数名)包含任一关键字即脱敏,比较时不区分大小写
//
// uid/ticket/sid 是知网登录后详情页和下载地址中携带的会话参数
var SensitiveKeywords = []string{
	"authorization",
	"cookie",
	"session",
	"token",
	"secret",
	"password",
	"credential",
	"api-key",
	"apikey",
	"api_key",
	"ticket",
	"uid",
	"sid",
}

// HeaderRedactor 日志脱敏,作用于额外请求头和页面地址
type HeaderRedactor struct {
	keywords []string
}

// NewHeaderRedactor 创建脱敏器,extra 为额外的敏感关键字
func NewHeaderRedactor(extra ...string) *HeaderRedactor {
	keywords := make([]string, 0, len(SensitiveKeywords)+len(extra))
	keywords = append(keywords, SensitiveKeywords...)
	for _, k := range extra {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	return &HeaderRedactor{keywords: keywords}
}

var defaultRedactor = NewHeaderRedactor()

// IsSensitive 名称是否需要脱敏
func (r *HeaderRedactor) IsSensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, k := range r.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// maskValue Bearer 只保留前缀,长值保留首尾各4个字符
func maskValue(value string) string {
	if scheme, _, ok := strings.Cut(value, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return scheme + " " + mask
	}
	if runes := []rune(value); len(runes) > 8 {
		return string(runes[:4]) + mask + string(runes[len(runes)-4:])
	}
	return mask
}

// Redact 返回脱敏后的头部,多个值用 ", " 连接
func (r *HeaderRedactor) Redact(headers http.Header) map[string]string {
	result := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		value := strings.Join(values, ", ")
		if r.IsSensitive(name) {
			value = maskValue(value)
		}
		result[name] = value
	}
	return result
}

// RedactToString 按名称排序,格式 "Name: value, ..."
func (r *HeaderRedactor) RedactToString(headers http.Header) string {
	redacted := r.Redact(headers)
	names := make([]string, 0, len(redacted))
	for name := range redacted {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name + ": " + redacted[name])
	}
	return b.String()
}

// RedactURL 隐藏地址中的敏感查询参数,参数顺序不变
// 无法解析的地址原样返回
func (r *HeaderRedactor) RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}

	params := strings.Split(u.RawQuery, "&")
	changed := false
	for i, param := range params {
		key, _, _ := strings.Cut(param, "=")
		name, err := url.QueryUnescape(key)
		if err != nil {
			name = key
		}
		if r.IsSensitive(name) {
			params[i] = key + "=" + mask
			changed = true
		}
	}
	if !changed {
		return raw
	}
	u.RawQuery = strings.Join(params, "&")
	return u.String()
}

// RedactURL 使用默认关键字脱敏地址
func RedactURL(raw string) string {
	return defaultRedactor.RedactURL(raw)
}
