package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/shiptoday/nanochat/config"
	"github.com/shiptoday/nanochat/internal/eventbus"
	"github.com/shiptoday/nanochat/internal/handler"
	"github.com/shiptoday/nanochat/internal/metrics"
	"github.com/shiptoday/nanochat/internal/pkg/database"
	"github.com/shiptoday/nanochat/internal/pkg/llm"
	"github.com/shiptoday/nanochat/internal/prompt"
	"github.com/shiptoday/nanochat/internal/repository"
	"github.com/shiptoday/nanochat/internal/router"
	"github.com/shiptoday/nanochat/internal/service/generator"
	"github.com/shiptoday/nanochat/internal/service/orchestrator"
	"github.com/shiptoday/nanochat/internal/subscriber"
	"github.com/shiptoday/nanochat/internal/validator"
)

// generateOptions 命令行参数，只覆盖显式设置过的配置项
type generateOptions struct {
	configPath       string
	numConversations int
	numWorkers       int
	model            string
	temperature      float64
	output           string
	dryRun           bool
	metricsAddr      string
}

func (o *generateOptions) bindFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&o.configPath, "config", "c", "", "config file (.yaml or .toml)")
	flags := cmd.Flags()
	flags.IntVarP(&o.numConversations, "num-conversations", "n", 0, "number of conversations to generate")
	flags.IntVarP(&o.numWorkers, "num-workers", "w", 0, "number of concurrent workers")
	flags.StringVar(&o.model, "model", "", "model name")
	flags.Float64Var(&o.temperature, "temperature", 0, "sampling temperature")
	flags.StringVarP(&o.output, "output", "o", "", "output JSONL file")
	flags.BoolVar(&o.dryRun, "dry-run", false, "print one rendered prompt and exit")
	flags.StringVar(&o.metricsAddr, "metrics-addr", "", "address for the status/metrics server, empty to disable")
}

func (o *generateOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("num-conversations") {
		cfg.Generate.NumConversations = o.numConversations
	}
	if flags.Changed("num-workers") {
		cfg.Generate.NumWorkers = o.numWorkers
	}
	if flags.Changed("model") {
		cfg.LLM.Model = o.model
	}
	if flags.Changed("temperature") {
		cfg.LLM.Temperature = o.temperature
	}
	if flags.Changed("output") {
		cfg.Data.OutputFile = o.output
	}
	if flags.Changed("dry-run") {
		cfg.Generate.DryRun = o.dryRun
	}
	if flags.Changed("metrics-addr") {
		cfg.Server.MetricsAddr = o.metricsAddr
	}
}

func runGenerate(cmd *cobra.Command, opts *generateOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	opts.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	tpl, err := prompt.NewLoader(cfg.Data.TemplateDir).Load(prompt.LoadOptions{
		ReadmePath:  cfg.Data.ReadmePath,
		LifeDocPath: cfg.Data.LifeDocPath,
		K:           cfg.Generate.ExemplarCount,
	})
	if err != nil {
		return err
	}

	v := validator.New(validator.Options{
		MinMessages:  cfg.Generate.MinMessages,
		RequireASCII: cfg.Generate.RequireASCII,
	})

	if cfg.Generate.DryRun {
		return generator.NewService(serviceOptions(cfg), tpl, nil, v).DryRun(cmd.OutOrStdout())
	}

	apiKey, err := cfg.ResolveAPIKey()
	if err != nil {
		return err
	}
	cfg.LLM.APIKey = apiKey

	gen, err := llm.NewGenerator(cfg)
	if err != nil {
		return err
	}

	svc := generator.NewService(serviceOptions(cfg), tpl, gen, v)
	bus := eventbus.NewRunEventBus()
	svc.SetEventBus(bus)
	m := metrics.New()
	svc.SetMetrics(m)

	var runRepo repository.RunRepository
	var outcomeRepo repository.OutcomeRepository
	if cfg.Database.Enabled {
		db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
		if err != nil {
			return err
		}
		runRepo = repository.NewRunRepository(db)
		outcomeRepo = repository.NewOutcomeRepository(db)
		subscriber.NewLedgerSubscriber(runRepo, outcomeRepo).Register(bus)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 状态服务先绑定端口，失败时在截断输出文件之前返回
	var server *http.Server
	var listener net.Listener
	if cfg.Server.MetricsAddr != "" {
		listener, err = net.Listen("tcp", cfg.Server.MetricsAddr)
		if err != nil {
			return fmt.Errorf("status server listen on %s: %w", cfg.Server.MetricsAddr, err)
		}
		defer listener.Close()
		engine := router.Setup(cfg, handler.NewRunHandler(svc, runRepo, outcomeRepo), m)
		server = &http.Server{Handler: engine}
	}

	// 状态服务与生成运行互不取消：服务出错只记录日志，运行使用信号上下文
	var g errgroup.Group
	if server != nil {
		g.Go(func() error {
			klog.Infof("Status server listening on %s", listener.Addr())
			if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				klog.Errorf("状态服务异常退出: %v", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		if server != nil {
			defer shutdownServer(server)
		}
		_, err := svc.Run(ctx)
		return err
	})

	return g.Wait()
}

func serviceOptions(cfg *config.Config) generator.Options {
	return generator.Options{
		NumConversations: cfg.Generate.NumConversations,
		NumWorkers:       cfg.Generate.NumWorkers,
		Model:            cfg.LLM.Model,
		Temperature:      cfg.LLM.Temperature,
		OutputPath:       cfg.OutputPath(),
		FailOnRejection:  cfg.Generate.FailOnRejection,
		Retry: orchestrator.RetryPolicy{
			MaxAttempts: cfg.Generate.Retry.MaxAttempts,
			BaseBackoff: cfg.Generate.Retry.BaseBackoff,
			MaxBackoff:  cfg.Generate.Retry.MaxBackoff,
			Retryable:   llm.IsTransient,
			Hint:        llm.RetryAfter,
		},
	}
}

func shutdownServer(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		klog.Warningf("关闭状态服务失败: %v", err)
	}
}
