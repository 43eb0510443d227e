package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/cnkifetch/internal/browser"
	"github.com/RecoveryAshes/cnkifetch/internal/utils"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "检查运行环境",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("==============================================")
		fmt.Println("  cnkifetch 运行环境检查")
		fmt.Println("==============================================")

		allOK := true
		fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

		// 浏览器
		switch bin := appConfig.Browser.BinPath; {
		case bin != "":
			if _, err := os.Stat(bin); err != nil {
				fmt.Printf("❌ 配置的浏览器不存在: %s\n", bin)
				allOK = false
			} else {
				fmt.Printf("✅ 浏览器: %s\n", bin)
			}
		default:
			if path, ok := launcher.LookPath(); ok {
				fmt.Printf("✅ 浏览器: %s\n", path)
			} else {
				fmt.Println("⚠️  未找到本地Chrome,首次运行时会自动下载Chromium")
			}
		}

		// 定位策略表
		if table, err := appConfig.StrategyTable(); err != nil {
			fmt.Printf("❌ 定位策略表无效: %v\n", err)
			allOK = false
		} else {
			fmt.Printf("✅ 定位策略表: %s (%d种文献类型)\n", table.Version, len(table.Categories))
		}

		// 目录
		for _, dir := range []string{appConfig.Logging.LogDir, outputDir} {
			if err := utils.ValidateDestination(dir, appConfig.Download.MinFreeSpaceMB); err != nil {
				fmt.Printf("❌ %s: %v\n", dir, err)
				allOK = false
			} else {
				fmt.Printf("✅ %s/\n", dir)
			}
		}

		// 系统资源
		monitor := browser.NewResourceMonitor(appConfig.ResourceMonitorConfig(), utils.Logger)
		fmt.Printf("✅ 按当前资源可同时打开 %d 个下载标签页\n", monitor.CalculateMaxTabs())

		fmt.Println("==============================================")
		if !allOK {
			return fmt.Errorf("环境检查未通过,请解决上述问题")
		}
		fmt.Println("✅ 环境检查通过")
		return nil
	},
}

func init() {
	doctorCmd.Flags().StringVarP(&outputDir, "output", "o", "downloads", "保存目录")
	rootCmd.AddCommand(doctorCmd)
}
