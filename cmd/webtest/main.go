// Package main provides webtest - a dashboard that discovers, runs and streams browser e2e tests.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/se302/webtest/pkg/catalog"
	"github.com/se302/webtest/pkg/config"
	"github.com/se302/webtest/pkg/git"
	"github.com/se302/webtest/pkg/notify"
	"github.com/se302/webtest/pkg/render"
	"github.com/se302/webtest/pkg/runner"
	"github.com/se302/webtest/pkg/web"
)

// opts holds all command-line options.
type opts struct {
	Port        int    `short:"p" long:"port" description:"dashboard port (overrides config)"`
	ProjectDir  string `long:"project-dir" description:"project root of the test suite (overrides config)"`
	Config      string `short:"c" long:"config" description:"local config file, default ./.webtest"`
	List        bool   `short:"l" long:"list" description:"print the test catalog and exit"`
	Format      string `short:"f" long:"format" choice:"table" choice:"yaml" choice:"json" default:"table" description:"catalog format for --list"`
	ExternalGit bool   `long:"external-git" description:"read repository info with the git cli instead of go-git"`
	InitConfig  bool   `long:"init-config" description:"install default config to ~/.config/webtest and exit"`
	NoColor     bool   `long:"no-color" description:"disable color output"`
	Debug       bool   `short:"d" long:"debug" description:"enable debug logging"`
	Version     bool   `short:"v" long:"version" description:"print version and exit"`
}

var revision = "unknown"

func main() {
	var o opts
	parser := flags.NewParser(&o, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if o.Version {
		fmt.Printf("webtest %s\n", revision)
		os.Exit(0)
	}

	setupLog(o.Debug)

	// setup context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, o); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o opts) error {
	if o.InitConfig {
		path, err := config.InstallDefaults(config.DefaultConfigDir())
		if err != nil {
			return fmt.Errorf("install config: %w", err)
		}
		fmt.Printf("config: %s\n", path)
		return nil
	}

	cfg, err := config.Load(o.Config, o.ProjectDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if o.Port > 0 {
		cfg.Port = o.Port
	}
	if o.NoColor {
		color.NoColor = true
	}

	cat := catalog.New(cfg.TestsRoot, cfg.Categories)
	suites := cat.Refresh()
	if o.List {
		return render.Catalog(os.Stdout, suites, render.Format(o.Format), o.NoColor)
	}

	repoInfo := repoInfoFunc(cfg.ProjectDir, o.ExternalGit)
	notifier, err := notify.New(cfg.Notify, stdLogger{})
	if err != nil {
		return fmt.Errorf("create notifier: %w", err)
	}

	coord := runner.New(runner.Config{
		RunnerPath:  cfg.RunnerPath,
		ProjectDir:  cfg.ProjectDir,
		Defaults:    runner.Defaults{Project: cfg.Project, Workers: cfg.Workers, Reporter: cfg.Reporter},
		Credentials: cfg.Credentials,
		RunsDir:     cfg.RunsPath,
		HistorySize: cfg.HistorySize,
		NoColor:     o.NoColor,
		Notifier:    notifier,
		RepoInfo:    repoInfo,
	})
	defer coord.Shutdown(runner.DefaultShutdownGrace)

	srv := web.NewServer(web.ServerConfig{
		Port:       cfg.Port,
		ResultsDir: cfg.ResultsPath,
		Observers:  cfg.Observers,
		Version:    revision,
		RepoInfo:   repoInfo,
	}, coord, cat)
	srv.CatalogUpdated(suites)

	printStartupInfo(cfg, suites, repoInfo())

	dcfg := web.DashboardConfig{Server: srv, Port: cfg.Port}
	if cfg.Watch {
		dcfg.Watcher = cat
	}
	return web.NewDashboard(dcfg).Run(ctx)
}

// repoInfoFunc returns a provider of repository info, re-read at most once per second.
func repoInfoFunc(projectDir string, external bool) func() git.Info {
	var (
		mu     sync.Mutex
		cached git.Info
		readAt time.Time
	)
	return func() git.Info {
		mu.Lock()
		defer mu.Unlock()
		if time.Since(readAt) > time.Second {
			cached, readAt = git.Describe(projectDir, external), time.Now()
		}
		return cached
	}
}

// stdLogger adapts the standard logger to the notifier's logger.
type stdLogger struct{}

func (stdLogger) Print(format string, args ...any) { log.Printf(format, args...) }

func printStartupInfo(cfg *config.Config, suites []catalog.TestSuite, info git.Info) {
	c := color.New(color.FgCyan)
	c.Printf("webtest %s\n", revision)
	c.Printf("project: %s\n", cfg.ProjectDir)
	if info.Branch != "" || info.Commit != "" {
		c.Printf("git: %s @ %s\n", info.Branch, info.Commit)
	}
	c.Printf("catalog: %d suites, %d cases in %s\n", len(suites), catalog.CountCases(suites), cfg.TestsRoot)
	c.Printf("runner: %s (project %s, %d workers, %s reporter)\n", cfg.RunnerPath, cfg.Project, cfg.Workers, cfg.Reporter)
	for _, k := range slices.Sorted(maps.Keys(cfg.Credentials)) {
		if cfg.Credentials[k] == "" {
			color.New(color.FgYellow).Printf("credential %s is not set, credential-dependent cases will skip\n", k)
		}
	}
}

func setupLog(dbg bool) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces}
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
