package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// TimeoutConfig 各类操作的超时(毫秒)
type TimeoutConfig struct {
	PageLoad       int `mapstructure:"page_load" json:"page_load" validate:"gt=0"`             // 页面加载
	NetworkIdle    int `mapstructure:"network_idle" json:"network_idle" validate:"gt=0"`       // 等待网络空闲
	Selector       int `mapstructure:"selector" json:"selector" validate:"gt=0"`               // 单个定位策略
	SelectorRetry  int `mapstructure:"selector_retry" json:"selector_retry" validate:"gt=0"`   // 恢复阶段的定位策略
	DownloadButton int `mapstructure:"download_button" json:"download_button" validate:"gt=0"` // 下载按钮定位
	ElementFind    int `mapstructure:"element_find" json:"element_find" validate:"gt=0"`       // 检索框等通用元素
	Download       int `mapstructure:"download" json:"download" validate:"gt=0"`               // 等待文件下载完成
	ResultWait     int `mapstructure:"result_wait" json:"result_wait" validate:"gte=0"`        // 等待检索结果出现
}

// WaitConfig 固定等待时长(毫秒)
type WaitConfig struct {
	PageSwitch    int `mapstructure:"page_switch" json:"page_switch" validate:"gte=0"`       // 操作后等待跳转/新标签页
	Scroll        int `mapstructure:"scroll" json:"scroll" validate:"gte=0"`                 // 滚动后等待渲染
	ContentLoad   int `mapstructure:"content_load" json:"content_load" validate:"gte=0"`     // 页面加载后额外等待
	Recheck       int `mapstructure:"recheck" json:"recheck" validate:"gte=0"`               // 延迟复查新页面
	BatchCooldown int `mapstructure:"batch_cooldown" json:"batch_cooldown" validate:"gte=0"` // 批次间冷却
	PollInterval  int `mapstructure:"poll_interval" json:"poll_interval" validate:"gt=0"`    // 轮询间隔
}

// DownloadConfig 下载配置
type DownloadConfig struct {
	MaxConcurrent     int  `mapstructure:"max_concurrent" json:"max_concurrent" validate:"gte=1,lte=10"`
	RetryTimes        int  `mapstructure:"retry_times" json:"retry_times" validate:"gte=0,lte=10"`
	MaxFilenameLength int  `mapstructure:"max_filename_length" json:"max_filename_length" validate:"gte=10"`
	MinFreeSpaceMB    int  `mapstructure:"min_free_space_mb" json:"min_free_space_mb" validate:"gte=0"`
	DebugScreenshots  bool `mapstructure:"debug_screenshots" json:"debug_screenshots"`
}

// AcquireConfig 引擎使用的超时与并发配置
type AcquireConfig struct {
	Timeouts TimeoutConfig  `mapstructure:"timeouts" json:"timeouts"`
	Waits    WaitConfig     `mapstructure:"waits" json:"waits"`
	Download DownloadConfig `mapstructure:"download" json:"download"`
}

// DefaultAcquireConfig 默认配置
func DefaultAcquireConfig() AcquireConfig {
	return AcquireConfig{
		Timeouts: TimeoutConfig{
			PageLoad:       15000,
			NetworkIdle:    10000,
			Selector:       8000,
			SelectorRetry:  10000,
			DownloadButton: 3000,
			ElementFind:    5000,
			Download:       30000,
			ResultWait:     30000,
		},
		Waits: WaitConfig{
			PageSwitch:    2000,
			Scroll:        1000,
			ContentLoad:   2000,
			Recheck:       1000,
			BatchCooldown: 3000,
			PollInterval:  200,
		},
		Download: DownloadConfig{
			MaxConcurrent:     1,
			RetryTimes:        2,
			MaxFilenameLength: 200,
			MinFreeSpaceMB:    100,
			DebugScreenshots:  true,
		},
	}
}

var configValidator = validator.New()

// Validate 验证配置
func (c *AcquireConfig) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}
	return nil
}

// Ms 毫秒转换为time.Duration
func Ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
