package core

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/RecoveryAshes/cnkifetch/internal/browser"
	"github.com/RecoveryAshes/cnkifetch/internal/models"
	"github.com/RecoveryAshes/cnkifetch/internal/utils"
)

// HeaderManager 管理浏览器额外请求头
// 实现 HeaderProvider 接口
type HeaderManager struct {
	// defaults 系统默认头部
	defaults http.Header

	// config 配置文件 browser.extra_headers
	config http.Header

	// cli 命令行 -H 参数
	cli http.Header

	validator *utils.HeaderValidator
	redactor  *utils.HeaderRedactor
	logger    zerolog.Logger
}

// NewHeaderManager 创建头部管理器
// 参数:
//   - configHeaders: 配置文件中的额外头部
//   - cliHeaders: 命令行传递的 "Name: Value" 列表
//
// 命令行参数格式错误时返回 ValidationError
func NewHeaderManager(configHeaders map[string]string, cliHeaders []string, logger zerolog.Logger) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults:  getDefaultHeaders(),
		config:    make(http.Header),
		cli:       make(http.Header),
		validator: utils.NewHeaderValidator(),
		redactor:  utils.NewHeaderRedactor(),
		logger:    logger,
	}

	for name, value := range configHeaders {
		hm.config.Set(name, value)
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	}
	return hm, nil
}

// getDefaultHeaders 返回系统默认头部
func getDefaultHeaders() http.Header {
	return http.Header{
		"Accept-Language": []string{browser.DefaultFingerprint().AcceptLanguage},
	}
}

// Validate 验证所有头部的合法性
// 验证顺序: 默认 → 配置 → 命令行
func (hm *HeaderManager) Validate() error {
	if err := hm.validator.Validate(hm.defaults); err != nil {
		hm.logger.Error().Err(err).Msg("默认头部验证失败")
		return err
	}
	if err := hm.validator.Validate(hm.config); err != nil {
		hm.logger.Error().Err(err).Msg("配置文件头部验证失败")
		return err
	}
	if err := hm.validator.Validate(hm.cli); err != nil {
		hm.logger.Error().Err(err).Msg("命令行头部验证失败")
		return err
	}
	return nil
}

// GetMergedHeaders 按优先级合并头部 (default < config < cli)
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[name] = values
		}
	}
	return result
}

// GetSafeHeaders 返回脱敏后的头部,用于日志
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	return hm.redactor.Redact(hm.GetMergedHeaders())
}

// GetHeaders 实现 HeaderProvider 接口
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	if err := hm.Validate(); err != nil {
		return nil, err
	}
	merged := hm.GetMergedHeaders()
	hm.logger.Debug().Str("headers", hm.redactor.RedactToString(merged)).Msg("额外请求头")
	return merged, nil
}

// Fingerprint 把合并后的头部写入指纹
// Accept-Language 同时用于 User-Agent 覆盖,保持两处一致
func Fingerprint(base browser.Fingerprint, provider models.HeaderProvider) (browser.Fingerprint, error) {
	headers, err := provider.GetHeaders()
	if err != nil {
		return base, err
	}
	if lang := headers.Get("Accept-Language"); lang != "" {
		base.AcceptLanguage = lang
	}
	base.ExtraHeaders = headers
	return base, nil
}
