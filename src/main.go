package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"PowerPlantCube/src/config"
	"PowerPlantCube/src/datasource/file"
	"PowerPlantCube/src/metrics"
	"PowerPlantCube/src/pipeline"
	"PowerPlantCube/src/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron"
	flag "github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run 返回进程退出码：0 成功，1 运行失败，2 参数或配置错误
func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("powercube", flag.ContinueOnError)
	configDir := fs.String("config-dir", "./config", "directory holding config.json and dataconfig.json")
	envFile := fs.String("env-file", ".env", "env file with POWERCUBE_* overrides")
	var flagValues config.Config
	config.BindFlags(fs, &flagValues)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, dcfg, err := config.LoadConfig(*configDir, "config.json", "dataconfig.json")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return 2
	}
	if err := cfg.ApplyEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := cfg.ApplyFlags(fs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		return 2
	}

	// 初始化日志系统
	logger, err := storage.NewLogger(cfg.LogName, cfg.Verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		return 1
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go reopenOnHangup(ctx, logger, cfg.LogName)

	if cfg.HTTPAddr != "" {
		srv := startWebUI(logger, cfg.HTTPAddr)
		defer srv.Close()
	}

	p := pipeline.New(cfg, dcfg, logger.Logger, stdout)
	rotate := rotator(logger, cfg.LogMaxSize)

	summary, err := runOnce(ctx, p, logger, "startup")
	rotate()
	if cfg.Schedule == 0 && !cfg.Watch {
		if err != nil || summary.Failed() > 0 {
			return 1
		}
		return 0
	}

	// 定时与文件变化共用同一个 guard，输出文件同一时间只有一次运行在写
	guard := newRunGuard(logger, func(trigger string) {
		runOnce(ctx, p, logger, trigger)
		rotate()
	})

	if cfg.Schedule > 0 {
		// 设置定时任务
		c := cron.New()
		cronSpec := fmt.Sprintf("@every %s", time.Duration(cfg.Schedule))
		err := c.AddFunc(cronSpec, func() {
			logger.Info("开始定时运行", "spec", cronSpec)
			guard.Fire("schedule")
		})
		if err != nil {
			logger.Error("创建定时任务失败", "error", err)
			return 1
		}
		c.Start()
		defer c.Stop()
	}

	if cfg.Watch {
		monitor, err := file.NewFileMonitor(cfg.InputPath)
		if err != nil {
			logger.Error("failed to watch input file", "path", cfg.InputPath, "error", err)
			return 1
		}
		defer monitor.Close()
		go func() {
			err := monitor.Watch(ctx, func(path string) {
				logger.Info("input file changed", "path", path)
				guard.Fire("watch")
			})
			if err != nil {
				logger.Error("File monitoring error", "error", err)
			}
		}()
	}

	logger.Info("服务已启动，按Ctrl+C退出", "schedule", time.Duration(cfg.Schedule), "watch", cfg.Watch)
	<-ctx.Done()
	logger.Info("shutting down")
	return 0
}

func runOnce(ctx context.Context, p *pipeline.Pipeline, logger *storage.Logger, trigger string) (*pipeline.Summary, error) {
	summary, err := p.Run(ctx)
	if err != nil {
		logger.Error("pipeline failed", "trigger", trigger, "error", err)
		metrics.PipelineRunsTotal.WithLabelValues(trigger, "error").Inc()
		return nil, err
	}
	for _, o := range summary.Outcomes {
		if o.Err != nil {
			logger.Warn("job failed", "job", o.Job, "error", o.Err)
		}
	}
	status := "ok"
	if summary.Failed() > 0 {
		status = "partial"
	}
	metrics.PipelineRunsTotal.WithLabelValues(trigger, status).Inc()
	return summary, nil
}

// runGuard 保证同一时间只有一次运行，运行中到达的触发直接跳过
type runGuard struct {
	mu     sync.Mutex
	logger *storage.Logger
	run    func(trigger string)
}

func newRunGuard(logger *storage.Logger, run func(trigger string)) *runGuard {
	return &runGuard{logger: logger, run: run}
}

// Fire 返回 false 表示上一次运行尚未结束，本次触发被跳过
func (g *runGuard) Fire(trigger string) bool {
	if !g.mu.TryLock() {
		g.logger.Warn("previous run still in progress, trigger skipped", "trigger", trigger)
		metrics.PipelineRunsTotal.WithLabelValues(trigger, "skipped").Inc()
		return false
	}
	defer g.mu.Unlock()
	g.run(trigger)
	return true
}

// rotator 每次运行结束后检查日志文件大小
func rotator(logger *storage.Logger, maxSize string) func() {
	limit, err := storage.ParseSize(maxSize)
	if err != nil {
		logger.Warn("invalid log max size, rotation disabled", "value", maxSize, "error", err)
		return func() {}
	}
	return func() {
		if err := logger.CheckRotate(limit); err != nil {
			logger.Error("log rotation failed", "error", err)
		}
	}
}

// reopenOnHangup 收到 SIGHUP 时重新打开日志文件，配合外部 logrotate 使用
func reopenOnHangup(ctx context.Context, logger *storage.Logger, logName string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if logName == "" {
				continue
			}
			if err := logger.Reopen(logName); err != nil {
				logger.Error("failed to reopen log file", "path", logName, "error", err)
				continue
			}
			logger.Info("log file reopened", "path", filepath.Clean(logName))
		}
	}
}

// startWebUI 启动一个简单的Web界面来显示实时日志和指标
func startWebUI(logger *storage.Logger, addr string) *http.Server {
	mux := http.NewServeMux()
	// 注册/logs路由的处理函数
	mux.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		// 创建日志订阅通道
		logChan := logger.Subscribe()
		defer logger.Unsubscribe(logChan)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		for {
			select {
			case msg, ok := <-logChan:
				if !ok {
					return
				}
				if _, err := fmt.Fprint(w, msg); err != nil {
					// 客户端断开连接
					return
				}
				// 刷新响应缓冲区，确保消息立即发送到客户端
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			case <-r.Context().Done():
				return
			}
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("web ui stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("web ui listening", "addr", addr)
	return srv
}
