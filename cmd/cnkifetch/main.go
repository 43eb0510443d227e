package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/cnkifetch/internal/browser"
	"github.com/RecoveryAshes/cnkifetch/internal/core"
	"github.com/RecoveryAshes/cnkifetch/internal/locator"
	"github.com/RecoveryAshes/cnkifetch/internal/models"
	"github.com/RecoveryAshes/cnkifetch/internal/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// 浏览器参数
	headers        []string
	headless       bool
	validateConfig bool

	// 检索参数
	keyword         string
	termFile        string
	count           int
	docType         string
	outputDir       string
	concurrency     int
	retryTimes      int
	strategyVersion string
	strategyFile    string
	noReport        bool
)

// appConfig 在 PersistentPreRunE 中加载
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "cnkifetch",
	Short: "中国知网文献批量下载工具",
	Long: `cnkifetch - 中国知网文献检索与批量下载工具

通过浏览器完成 首页 → 文献类型 → 检索 → 提取结果 → 分批下载,支持:
  • 11种文献类型 (学术期刊、学位论文、会议、报纸、年鉴、专利、标准、成果、学术辑刊、图书、文库)
  • 新标签页与原地跳转的自动识别
  • 可替换的版本化定位策略表
  • 付费文献自动跳过并单独统计
  • 文件名清理与重名处理,不会覆盖已有文件

示例:
  cnkifetch -k 人工智能 -n 5 -t 学位论文 -o ./papers
  cnkifetch -f terms.txt -n 10 --concurrency 2
  cnkifetch -k 区块链 -H "Referer: https://www.cnki.net/"

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		flags := core.CLIFlags{
			Concurrency:     concurrency,
			RetryTimes:      -1,
			StrategyVersion: strategyVersion,
			StrategyFile:    strategyFile,
			LogLevel:        logLevel,
		}
		if cmd.Flags().Changed("retry") {
			flags.RetryTimes = retryTimes
		}
		if cmd.Flags().Changed("headless") {
			flags.Headless = &headless
		}
		config.MergeCLIFlags(flags)

		if err := utils.InitLogger(config.LogConfig()); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		if verbose {
			utils.Info("详细模式已启用")
		}

		appConfig = config
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		headerManager, err := core.NewHeaderManager(appConfig.Browser.ExtraHeaders, headers, utils.Logger)
		if err != nil {
			return fmt.Errorf("解析请求头失败: %w", err)
		}

		if validateConfig {
			return runValidateConfig(headerManager)
		}

		if keyword == "" && termFile == "" {
			return cmd.Help()
		}

		if !cmd.Flags().Changed("count") {
			count = appConfig.Defaults.Count
		}
		if !cmd.Flags().Changed("type") {
			docType = appConfig.Defaults.Category
		}
		if err := ValidateFlags(keyword, termFile, count, docType, appConfig.Download.MaxConcurrent, appConfig.Download.RetryTimes); err != nil {
			return err
		}
		if err := appConfig.Validate(); err != nil {
			return err
		}

		category, err := models.ParseCategory(docType)
		if err != nil {
			return err
		}

		terms := []string{keyword}
		if termFile != "" {
			if terms, err = utils.ReadTermsFromFile(termFile); err != nil {
				return fmt.Errorf("读取检索词文件失败: %w", err)
			}
		}

		table, err := appConfig.StrategyTable()
		if err != nil {
			return fmt.Errorf("加载定位策略表失败: %w", err)
		}

		fp, err := core.Fingerprint(appConfig.BaseFingerprint(), headerManager)
		if err != nil {
			return fmt.Errorf("请求头验证失败: %w", err)
		}
		utils.Debugf("浏览器额外请求头: %v", headerManager.GetSafeHeaders())

		monitor := browser.NewResourceMonitor(appConfig.ResourceMonitorConfig(), utils.Logger)
		monitor.StartMonitoring(2 * time.Second)
		defer monitor.StopMonitoring()

		dirNames := utils.TermDirNames(terms)
		failed := 0
		for i, term := range terms {
			dest := outputDir
			if len(terms) > 1 {
				utils.Infof("==================== [%d/%d] %s ====================", i+1, len(terms), term)
				dest = filepath.Join(outputDir, dirNames[i])
			}

			if err := runOne(ctx, term, category, dest, table, fp, monitor); err != nil {
				failed++
				utils.Errorf("❌ 检索词 %s 获取失败: %v", term, err)
				if len(terms) == 1 {
					return err
				}
			}
			if ctx.Err() != nil {
				utils.Warn("收到中断信号,停止后续检索")
				break
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d/%d 个检索词获取失败", failed, len(terms))
		}
		utils.Info("✨ 获取任务完成!")
		return nil
	},
}

// runOne 执行一个检索词的完整获取流程
func runOne(ctx context.Context, term string, category models.DocumentCategory, dest string,
	table *locator.Table, fp browser.Fingerprint, monitor *browser.ResourceMonitor) error {
	req, err := models.NewAcquisitionRequest(term, count, category, dest)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	engine := core.NewEngine(core.EngineConfig{
		HomeURL:  appConfig.Site.HomeURL,
		Table:    table,
		Acquire:  appConfig.AcquireConfig(),
		LogDir:   appConfig.Logging.LogDir,
		Resource: monitor,
	}, func(downloadDir string) browser.Launcher {
		return browser.NewRodLauncher(appConfig.LaunchOptions(downloadDir, fp), utils.Logger)
	},
		core.WithEngineLogger(utils.Logger),
		core.WithProgress(
			func(n int) {
				if n > 0 {
					bar = utils.NewProgressBar(n, "📥 下载中")
				}
			},
			func(models.Outcome) {
				if bar != nil {
					bar.Add(1)
				}
			},
		),
	)

	summary, err := engine.Run(ctx, req)
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return err
	}

	fmt.Print(utils.FormatSummary(summary))

	if !noReport {
		path, err := utils.NewReporter(req.DestinationFolder).GenerateReport(summary, table.Version, appConfig.AcquireConfig())
		if err != nil {
			utils.Warnf("⚠️  生成报告失败: %v", err)
		} else {
			utils.Infof("📄 报告已保存: %s", path)
		}
	}
	return nil
}

// runValidateConfig 验证配置与请求头并打印生效值
func runValidateConfig(hm *core.HeaderManager) error {
	utils.Info("🔍 验证配置...")
	if err := appConfig.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}
	if err := hm.Validate(); err != nil {
		return fmt.Errorf("请求头验证失败: %w", err)
	}
	table, err := appConfig.StrategyTable()
	if err != nil {
		return fmt.Errorf("定位策略表无效: %w", err)
	}

	safeHeaders := hm.GetSafeHeaders()
	names := make([]string, 0, len(safeHeaders))
	for name := range safeHeaders {
		names = append(names, name)
	}
	sort.Strings(names)

	utils.Info("✅ 配置验证通过!")
	utils.Infof("定位策略表: %s", table.Version)
	utils.Infof("当前有效的额外请求头 (%d个):", len(names))
	for _, name := range names {
		utils.Infof("  %s: %s", name, safeHeaders[name])
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cnkifetch %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
		fmt.Printf("内置定位策略表: %v (默认 %s)\n", locator.Versions(), locator.DefaultVersion)
	},
}

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "列出定位策略表及支持的文献类型",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := appConfig.StrategyTable()
		if err != nil {
			return err
		}

		fmt.Printf("可用版本: %v\n", locator.Versions())
		fmt.Printf("当前版本: %s", table.Version)
		if table.Description != "" {
			fmt.Printf(" (%s)", table.Description)
		}
		fmt.Println()
		fmt.Println("文献类型:")
		for _, c := range models.AllCategories {
			text, ok := table.Categories[string(c)]
			if !ok {
				fmt.Printf("  %s: (未注册)\n", c)
				continue
			}
			fmt.Printf("  %s → 链接文字 %q\n", c, text)
		}
		return nil
	},
}

var checkDirCmd = &cobra.Command{
	Use:   "check-dir <目录>",
	Short: "检查保存目录是否可用",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		if err := utils.ValidateDestination(dir, appConfig.Download.MinFreeSpaceMB); err != nil {
			return err
		}
		utils.Infof("✅ 目录可用: %s", dir)
		return nil
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&strategyVersion, "strategy-version", "", "定位策略表版本")
	rootCmd.PersistentFlags().StringVar(&strategyFile, "strategy-file", "", "自定义定位策略表文件 (YAML)")

	// 浏览器参数
	rootCmd.Flags().StringSliceVarP(&headers, "header", "H", []string{}, "浏览器额外请求头,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")

	// 检索参数
	rootCmd.Flags().StringVarP(&keyword, "keyword", "k", "", "检索关键词 (必需,除非使用 --term-file)")
	rootCmd.Flags().StringVarP(&termFile, "term-file", "f", "", "每行一个检索词的文件")
	rootCmd.Flags().IntVarP(&count, "count", "n", 10, "下载数量")
	rootCmd.Flags().StringVarP(&docType, "type", "t", string(models.CategoryJournal), "文献类型")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "downloads", "保存目录")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 0, "同时下载的文献数 (默认使用配置文件)")
	rootCmd.Flags().IntVar(&retryTimes, "retry", 2, "单篇文献失败后的重试次数")
	rootCmd.Flags().BoolVar(&noReport, "no-report", false, "不生成JSON报告")

	rootCmd.AddCommand(versionCmd, strategiesCmd, checkDirCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
