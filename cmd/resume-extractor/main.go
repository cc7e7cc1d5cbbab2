package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resume-extractor/internal/api/handler"
	"resume-extractor/internal/api/router"
	"resume-extractor/internal/bootstrap"
	"resume-extractor/internal/config"
	"resume-extractor/internal/logger"
	"resume-extractor/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

func main() {
	var configPath, initConfig string
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径，默认在 configs/ 等常见位置查找")
	pflag.StringVar(&initConfig, "init-config", "", "把默认配置写到指定路径后退出")
	pflag.Parse()

	if initConfig != "" {
		if err := config.CreateSampleConfig(initConfig); err != nil {
			logger.Fatal().Err(err).Msg("生成示例配置失败")
		}
		logger.Info().Str("path", initConfig).Msg("已生成示例配置")
		return
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}

	if closer := logger.Init(logger.Config(cfg.Logger)); closer != nil {
		defer closer.Close()
	}
	logger.InstallHertz()
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config(cfg.Tracing))
	if err != nil {
		glog.Warnf("初始化链路追踪失败，继续运行: %v", err)
	}

	application, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化服务失败: %v", err)
	}
	defer application.Close()
	glog.Infof("可用厂商: %v", application.Registry.Available())

	handlerOpts := []handler.Option{handler.WithProviders(application.Registry)}
	if application.Storage.MySQL != nil {
		handlerOpts = append(handlerOpts, handler.WithHistory(application.Storage.MySQL))
	}
	resumeHandler := handler.NewResumeHandler(cfg, application.Processor, application.Ingestor, handlerOpts...)

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		tracer,
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		server.WithMaxRequestBodySize(cfg.Server.MaxUploadMB<<20),
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))

	h.Use(func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		ctx.Next(c)
		glog.CtxInfof(c, "%s %s %d %v", ctx.Method(), ctx.Path(), ctx.Response.StatusCode(), time.Since(start))
	})

	router.RegisterRoutes(h, resumeHandler, cfg.Server.APIKeys)
	glog.Infof("HTTP服务监听 %s", cfg.Server.Address)

	go h.Run()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ExitWaitSecond)*time.Second)
	defer shutdownCancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("服务器关闭失败: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		glog.Warnf("关闭链路追踪失败: %v", err)
	}
	glog.Info("优雅退出完成")
}
