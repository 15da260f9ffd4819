package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cheggaaa/pb/v3"

	"proxyharvest/internal/shared/config"
	"proxyharvest/internal/shared/logger"
	manager "proxyharvest/proxypool"
	"proxyharvest/proxypool/model"
	"proxyharvest/proxypool/validator"
)

func main() {
	configDir := flag.String("configdir", "configs", "Path to config directory")
	outPath := flag.String("out", "", "Write live proxies as JSON to this file instead of stdout")
	progress := flag.Bool("progress", false, "Show a progress bar while probing candidates")
	purge := flag.Bool("purge", false, "Remove expired page cache entries and exit")
	flag.Parse()

	iniPath := filepath.Join(*configDir, "harvest.ini")

	// 1. 加载 .ini 配置 (可被 .env / 环境变量覆盖)
	cfg, err := config.Load(iniPath)
	if err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}

	// 1.1 初始化日志系统
	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// 2. 组装抓取流程
	h, err := manager.NewFromConfig(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msgf("Failed to build harvester")
	}

	if *purge {
		removed, err := h.Cache().Purge()
		if err != nil {
			logger.Fatal().Err(err).Msgf("Cache purge failed")
		}
		logger.Info().Int("removed", removed).Msgf("Cache purged.")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bar *pb.ProgressBar
	if *progress {
		h.OnProbeStart = func(total int) {
			bar = pb.StartNew(total)
			bar.SetTemplate(`{{counters . }} {{bar . }} {{percent . }} {{etime . }}`)
		}
		h.OnProbe = func(model.ProxyRecord, validator.Result) {
			bar.Increment()
		}
	}

	// 3. 运行
	report, err := h.Run(ctx)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		logger.Fatal().Err(err).Msgf("Harvest failed")
	}

	logger.Info().
		Str("run_id", report.RunID).
		Int("pages", report.Pages).
		Int("pages_failed", report.PagesFailed).
		Int("candidates", report.Candidates).
		Int("live", report.Live).
		Dur("duration", report.Duration).
		Msgf("Done.")

	// 4. 输出结果
	if *outPath != "" {
		if err := config.SaveProxies(*outPath, report.Proxies); err != nil {
			logger.Fatal().Err(err).Msgf("Failed to write '%s'", *outPath)
		}
		return
	}
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for _, p := range report.Proxies {
		fmt.Fprintln(w, p.String())
	}
}
