package browser

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitorConfig 资源监控配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 为系统保留的内存(字节)
	CPULoadThreshold    int   // CPU负载阈值(%),>=200 表示不检查
	MaxTabsLimit        int   // 绝对最大标签页数
	TabMemoryUsage      int64 // 单个标签页平均内存消耗(字节)
}

// DefaultResourceMonitorConfig 默认配置
func DefaultResourceMonitorConfig() ResourceMonitorConfig {
	return ResourceMonitorConfig{
		SafetyReserveMemory: 1024 * 1024 * 1024, // 1GB
		CPULoadThreshold:    90,
		MaxTabsLimit:        8,
		TabMemoryUsage:      150 * 1024 * 1024, // 150MB
	}
}

// ResourceMonitor 系统资源监控器
// 根据可用内存和CPU负载限制同时打开的下载标签页数量
type ResourceMonitor struct {
	config ResourceMonitorConfig
	logger zerolog.Logger

	mu              sync.RWMutex
	availableMemory uint64
	cpuUsage        float64

	cancelFunc context.CancelFunc
	isRunning  bool

	sampleMemory func() (uint64, error)
	sampleCPU    func() (float64, error)
}

// NewResourceMonitor 创建资源监控器并立即采样一次
func NewResourceMonitor(config ResourceMonitorConfig, logger zerolog.Logger) *ResourceMonitor {
	return newResourceMonitor(config, logger, availableSystemMemory, systemCPUPercent)
}

func newResourceMonitor(config ResourceMonitorConfig, logger zerolog.Logger,
	memFn func() (uint64, error), cpuFn func() (float64, error)) *ResourceMonitor {
	if config.TabMemoryUsage <= 0 {
		config.TabMemoryUsage = DefaultResourceMonitorConfig().TabMemoryUsage
	}
	if config.MaxTabsLimit <= 0 {
		config.MaxTabsLimit = DefaultResourceMonitorConfig().MaxTabsLimit
	}

	rm := &ResourceMonitor{
		config:       config,
		logger:       logger,
		sampleMemory: memFn,
		sampleCPU:    cpuFn,
	}
	rm.sample()
	return rm
}

func availableSystemMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

func systemCPUPercent() (float64, error) {
	// perCPU=false 返回所有核心的平均使用率
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("CPU使用率数据为空")
	}
	return percentages[0], nil
}

// sample 采样一次内存和CPU
func (rm *ResourceMonitor) sample() {
	avail, err := rm.sampleMemory()
	if err != nil {
		rm.logger.Warn().Err(err).Msg("获取系统内存失败,按4GB估算")
		avail = 4 * 1024 * 1024 * 1024
	}
	usage, err := rm.sampleCPU()
	if err != nil {
		rm.logger.Debug().Err(err).Msg("获取CPU使用率失败")
		usage = 0
	}

	rm.mu.Lock()
	rm.availableMemory = avail
	rm.cpuUsage = usage
	rm.mu.Unlock()
}

// StartMonitoring 启动后台周期采样,重复调用无副作用
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.isRunning {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm.cancelFunc = cancel
	rm.isRunning = true

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rm.sample()
			}
		}
	}()
}

// StopMonitoring 停止后台采样
func (rm *ResourceMonitor) StopMonitoring() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.isRunning && rm.cancelFunc != nil {
		rm.cancelFunc()
		rm.isRunning = false
		rm.cancelFunc = nil
	}
}

// CalculateMaxTabs 当前允许的最大标签页数,至少为1
func (rm *ResourceMonitor) CalculateMaxTabs() int {
	rm.mu.RLock()
	avail := int64(rm.availableMemory)
	rm.mu.RUnlock()

	byMemory := 1
	if surplus := avail - rm.config.SafetyReserveMemory; surplus > 0 {
		byMemory = int(surplus / rm.config.TabMemoryUsage)
	}

	result := byMemory
	if n := runtime.NumCPU(); n < result {
		result = n
	}
	if rm.config.MaxTabsLimit < result {
		result = rm.config.MaxTabsLimit
	}
	if result < 1 {
		result = 1
	}
	return result
}

// CheckResourceAvailability 检查是否允许再打开一个标签页
func (rm *ResourceMonitor) CheckResourceAvailability() (bool, string) {
	rm.mu.RLock()
	avail := int64(rm.availableMemory)
	usage := rm.cpuUsage
	rm.mu.RUnlock()

	if avail-rm.config.SafetyReserveMemory < rm.config.TabMemoryUsage {
		reason := fmt.Sprintf("内存不足(可用%dMB)", avail/(1024*1024))
		rm.logger.Warn().Msgf("%s,标签页创建受限", reason)
		return false, reason
	}
	if rm.config.CPULoadThreshold < 200 && usage > float64(rm.config.CPULoadThreshold) {
		return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", usage)
	}
	return true, ""
}
