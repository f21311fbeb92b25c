package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/wheelstub/wheelstub/internal/analyzer"
	"github.com/wheelstub/wheelstub/internal/cache"
	"github.com/wheelstub/wheelstub/internal/config"
	"github.com/wheelstub/wheelstub/internal/logging"
	"github.com/wheelstub/wheelstub/internal/proxy"
	"github.com/wheelstub/wheelstub/internal/pypi"
	"github.com/wheelstub/wheelstub/internal/resolver"
	"github.com/wheelstub/wheelstub/internal/server"
	"github.com/wheelstub/wheelstub/internal/server/routes"
	"github.com/wheelstub/wheelstub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath    string
	checkOnly     bool
	showVersion   bool
	analyzeTarget string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	// -analyze 模式只输出报告，不初始化结构化日志，避免污染表格输出。
	if opts.analyzeTarget != "" {
		return runAnalyze(cfg, opts.analyzeTarget)
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["packages"] = len(cfg.Packages)
		fields["policies"] = config.PolicySummaries(cfg.Packages)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	registry, err := server.NewStubRegistry(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "构建替换表失败: %v\n", err)
		return 1
	}

	upstreamURL, err := url.Parse(cfg.Global.UpstreamURL)
	if err != nil {
		fmt.Fprintf(stdErr, "解析上游地址失败: %v\n", err)
		return 1
	}

	// CLI 启动遵循“配置 → 替换表 → 版本缓存 → Fiber server”顺序，
	// 保证所有请求共享统一的路由与版本实例，方便观察 resolve/log 指标。
	versions := cache.NewVersionCache()
	metadataClient := pypi.NewClient(cfg.Global.UpstreamURL, server.NewMetadataClient(cfg))
	res := resolver.New(metadataClient, versions, cfg.Global.FallbackVersion, logger)
	stubs := proxy.NewSynthesizer(res, logger)
	forwarder := proxy.NewForwarder(server.NewUpstreamClient(cfg), logger, upstreamURL, cfg.Global.ListenPort)

	fields := logging.BaseFields("startup", opts.configPath)
	fields["packages"] = len(cfg.Packages)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["upstream"] = cfg.Global.UpstreamURL
	fields["policies"] = config.PolicySummaries(cfg.Packages)
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, registry, versions, stubs, forwarder, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// runAnalyze 拉取目标包的依赖声明并输出版本解析报告。
func runAnalyze(cfg *config.Config, target string) int {
	client := pypi.NewClient(cfg.Global.UpstreamURL, server.NewMetadataClient(cfg))
	report, err := analyzer.New(client).Analyze(context.Background(), target)
	if err != nil {
		fmt.Fprintf(stdErr, "依赖分析失败: %v\n", err)
		return 1
	}
	if err := analyzer.Render(stdOut, report); err != nil {
		fmt.Fprintf(stdErr, "输出报告失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("wheelstub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		analyze    string
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 WHEELSTUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.StringVar(&analyze, "analyze", "", "分析指定包的依赖约束并输出版本报告后退出")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("WHEELSTUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:    path,
		checkOnly:     checkOnly,
		showVersion:   showVer,
		analyzeTarget: analyze,
	}, nil
}

func startHTTPServer(
	cfg *config.Config,
	registry *server.StubRegistry,
	versions *cache.VersionCache,
	stubs server.StubHandler,
	forwarder server.ForwardHandler,
	logger *logrus.Logger,
) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		Stubs:      stubs,
		Forward:    forwarder,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterStatusRoutes(app, registry, versions, cfg.Global.UpstreamURL)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
