package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/Ramsey-USA/mh-website-sub005/internal/agent"
	"github.com/Ramsey-USA/mh-website-sub005/internal/config"
	"github.com/Ramsey-USA/mh-website-sub005/internal/fetch"
	"github.com/Ramsey-USA/mh-website-sub005/internal/logging"
	"github.com/Ramsey-USA/mh-website-sub005/internal/proxy"
	"github.com/Ramsey-USA/mh-website-sub005/internal/queue"
	"github.com/Ramsey-USA/mh-website-sub005/internal/server"
	"github.com/Ramsey-USA/mh-website-sub005/internal/server/routes"
	"github.com/Ramsey-USA/mh-website-sub005/internal/version"
)

const configEnvVar = "OFFLINE_AGENT_CONFIG"

// cliOptions 汇总 CLI 解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	listQueue   string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	if err := newCLIApp().Run(os.Args); err != nil {
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			os.Exit(exit.ExitCode())
		}
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
}

// newCLIApp 构建命令树；不带子命令时等同 serve。
// --config 是全局标志，优先级：标志 > OFFLINE_AGENT_CONFIG > ./config.toml。
func newCLIApp() *cli.App {
	return &cli.App{
		Name:        "offline-agent",
		Usage:       "Offline caching and background-sync agent",
		HideVersion: true,
		Writer:      stdOut,
		ErrWriter:   stdErr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "配置文件路径",
				EnvVars: []string{configEnvVar},
				Value:   "config.toml",
			},
		},
		// 退出码由 main 处理，测试中不会触发 os.Exit。
		ExitErrHandler: func(*cli.Context, error) {},
		Action:         serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "启动 agent 与本地代理",
				Action: serveAction,
			},
			{
				Name:  "check-config",
				Usage: "仅校验配置后退出",
				Action: func(c *cli.Context) error {
					return exitWith(run(cliOptions{configPath: c.String("config"), checkOnly: true}))
				},
			},
			{
				Name:  "version",
				Usage: "显示版本信息",
				Action: func(c *cli.Context) error {
					return exitWith(run(cliOptions{showVersion: true}))
				},
			},
			{
				Name:  "queue",
				Usage: "查看离线提交队列",
				Subcommands: []*cli.Command{
					{
						Name:      "list",
						Usage:     "列出队列中待回放的条目",
						ArgsUsage: "<contact-forms|bookings|testimonials>",
						Action: func(c *cli.Context) error {
							if c.NArg() != 1 {
								return cli.Exit("queue list 需要一个队列名", 2)
							}
							return exitWith(run(cliOptions{configPath: c.String("config"), listQueue: c.Args().First()}))
						},
					},
				},
			},
		},
	}
}

func serveAction(c *cli.Context) error {
	return exitWith(run(cliOptions{configPath: c.String("config")}))
}

func exitWith(code int) error {
	if code == 0 {
		return nil
	}
	return cli.Exit("", code)
}

// run 根据 CLI 选项执行业务流程，并返回退出码，方便测试。
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

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		for k, v := range cfg.Summary() {
			fields[k] = v
		}
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	if opts.listQueue != "" {
		return listQueue(cfg, opts.listQueue)
	}

	if err := serve(cfg, opts.configPath, logger); err != nil {
		fmt.Fprintf(stdErr, "agent 启动失败: %v\n", err)
		return 1
	}
	return 0
}

// listQueue 直接读取队列存储；LevelDB 后端被运行中的 agent 占用时会打开失败。
func listQueue(cfg *config.Config, raw string) int {
	name, err := queue.ParseName(raw)
	if err != nil {
		fmt.Fprintf(stdErr, "%v\n", err)
		return 2
	}
	ctx := context.Background()
	store, err := queue.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "打开队列失败: %v\n", err)
		return 1
	}
	defer store.Close()

	items, err := store.ListPending(ctx, name)
	if err != nil {
		fmt.Fprintf(stdErr, "读取队列失败: %v\n", err)
		return 1
	}
	if items == nil {
		items = []queue.Mutation{}
	}
	enc := json.NewEncoder(stdOut)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		fmt.Fprintf(stdErr, "输出失败: %v\n", err)
		return 1
	}
	return 0
}

// serve 按“配置 → agent（缓存/队列/版本注册）→ Host 解析 → Fiber server”顺序启动，
// 所有拦截请求共享同一个 agent 实例。
func serve(cfg *config.Config, configPath string, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := server.NewUpstreamClient(cfg)
	a, err := agent.New(ctx, agent.Options{
		Config:  cfg,
		Logger:  logger,
		Network: fetch.NewHTTPFetcher(client, version.UserAgent()),
	})
	if err != nil {
		return err
	}
	defer a.Close()

	a.Start(ctx)
	if err := a.Watch(ctx, configPath); err != nil {
		logger.WithError(err).WithFields(logging.BaseFields("config_watch", configPath)).Warn("config_watch_disabled")
	}

	resolver, err := server.NewTargetResolver(cfg)
	if err != nil {
		return err
	}
	forwarder := proxy.NewForwarder(proxy.NewHandler(a, logger), logger)
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Targets:    resolver,
		Proxy:      forwarder,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return err
	}
	routes.Register(app, a, logger)

	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()

	fields := logging.BaseFields("startup", configPath)
	for k, v := range cfg.Summary() {
		fields[k] = v
	}
	fields["listen_port"] = cfg.Global.ListenPort
	fields["hosts"] = resolver.Hosts()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("agent 启动")

	return app.Listen(fmt.Sprintf(":%d", cfg.Global.ListenPort))
}
