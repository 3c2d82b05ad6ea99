package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/l1jgo/pathd/internal/config"
	"github.com/l1jgo/pathd/internal/core/event"
	coresys "github.com/l1jgo/pathd/internal/core/system"
	"github.com/l1jgo/pathd/internal/data"
	"github.com/l1jgo/pathd/internal/grid"
	"github.com/l1jgo/pathd/internal/handler"
	gonet "github.com/l1jgo/pathd/internal/net"
	"github.com/l1jgo/pathd/internal/net/packet"
	"github.com/l1jgo/pathd/internal/pathfind"
	"github.com/l1jgo/pathd/internal/persist"
	"github.com/l1jgo/pathd/internal/scripting"
	"github.com/l1jgo/pathd/internal/system"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/width"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

var numbers = message.NewPrinter(language.TraditionalChinese)

func printBanner(serverName string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m           L1JGO-Pathd  v0.1.0             \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      跳點搜尋 · Go 尋路服務               \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m服務:\033[0m %s\n\n", serverName)
}

// displayWidth counts terminal columns; wide CJK runes take two.
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

func printSection(title string) {
	lineLen := 46 - displayWidth(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := numbers.Sprintf("%d", count)
	dotsLen := 42 - displayWidth(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main service logic ────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/pathd.toml"
	if p := os.Getenv("PATHD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()
	failLog := handler.NewFailureLogger(log, cfg.Logging.FailureWindow, cfg.Logging.FailureBurst)

	printBanner(cfg.Server.Name)

	geo := grid.Geometry{
		CellSize:   cfg.Grid.CellSize,
		ChunkCells: cfg.Grid.ChunkCells,
		ChunkSpan:  cfg.Grid.ChunkSpan,
	}
	registry := grid.NewRegistry(geo)

	// 3. Optional PostgreSQL: migrations, audit retention, snapshot restore
	var (
		db        *persist.DB
		chunkRepo *persist.ChunkRepo
		queryRepo *persist.QueryLogRepo
	)
	if cfg.Database.Enabled {
		printSection("資料庫")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, err = persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL 連線成功")

		applied, err := persist.RunMigrations(ctx, db.Pool, log)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("資料庫遷移完成")
		printStat("新套用遷移", applied)

		chunkRepo = persist.NewChunkRepo(db)
		queryRepo = persist.NewQueryLogRepo(db)

		if cfg.Database.QueryLogRetention > 0 {
			pruned, err := queryRepo.Prune(ctx, time.Now().Add(-cfg.Database.QueryLogRetention))
			if err != nil {
				return fmt.Errorf("prune query log: %w", err)
			}
			printStat("過期查詢紀錄清除", int(pruned))
		}

		rows, err := chunkRepo.LoadSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		restored, skipped := persist.Restore(registry, rows, log)
		printStat("快照區塊還原", restored)
		if skipped > 0 {
			printStat("快照區塊略過", skipped)
		}
		fmt.Println()
	}

	// 4. Fixtures and policy script
	printSection("資料載入")

	if cfg.Fixtures.Path != "" {
		fixtures, err := data.LoadChunkFixtures(cfg.Fixtures.Path)
		if err != nil {
			return fmt.Errorf("load fixtures: %w", err)
		}
		n, err := data.RegisterFixtures(registry, fixtures)
		if err != nil {
			return fmt.Errorf("register fixtures: %w", err)
		}
		printStat("固定區塊", n)
	}
	printStat("已註冊區塊", registry.Len())

	var policy *scripting.Engine
	if cfg.Scripting.PolicyScript != "" {
		policy, err = scripting.NewEngine(cfg.Scripting.PolicyScript, log)
		if err != nil {
			return fmt.Errorf("policy script: %w", err)
		}
		defer policy.Close()
		policy.SetTimeout(cfg.Scripting.PolicyTimeout)
		printOK(fmt.Sprintf("Lua 策略已載入 %s", cfg.Scripting.PolicyScript))
	}
	fmt.Println()

	// 5. Engine, metrics and message handlers
	engine := pathfind.NewEngine(registry, pathfind.Options{
		MaxIterations:   cfg.Search.MaxIterations,
		MaxJumpDistance: cfg.Search.MaxJumpDistance,
		MaxLookups:      cfg.Search.MaxLookups,
		PoolCapacity:    cfg.Search.PoolCapacity,
		SnapRadius:      cfg.Search.SnapRadius,
		PartialMinGain:  cfg.Search.PartialMinGain,
		LOSSampleStep:   cfg.Search.LOSSampleStep,
		Smooth:          cfg.Search.Smooth,
	})

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := handler.NewMetrics(promReg)

	bus := event.NewBus()
	pktReg := packet.NewRegistry(log)
	deps := &handler.Deps{
		Config:  cfg,
		Log:     log,
		FailLog: failLog,
		Grid:    registry,
		Engine:  engine,
		Policy:  policy,
		Bus:     bus,
		Metrics: metrics,
	}
	handler.RegisterAll(pktReg, deps)

	// 6. Transports
	netServer, err := gonet.NewServer(cfg.Network, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	go netServer.AcceptLoop()

	var httpServer *http.Server
	if cfg.HTTP.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc(cfg.HTTP.WebSocketPath, netServer.ServeWS)
		mux.Handle(cfg.HTTP.MetricsPath, promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		httpServer = &http.Server{
			Addr:              cfg.HTTP.BindAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("HTTP 服務異常終止", zap.Error(err))
			}
		}()
	}

	// 7. Systems
	store := gonet.NewSessionStore()
	ticks := func(d time.Duration) int {
		n := int(d / cfg.Network.TickRate)
		if n < 1 {
			n = 1
		}
		return n
	}

	runner := coresys.NewRunner()
	runner.Observe(func(phase coresys.Phase, elapsed time.Duration) {
		metrics.ObservePhase(phase.String(), elapsed)
	})
	runner.Register(system.NewInputSystem(netServer.NewSessions(), pktReg, store, metrics, cfg.Network.MaxMessagesPerTick, log, failLog))
	runner.Register(system.NewEventSystem(bus))
	runner.Register(system.NewStatsSystem(registry, engine, store, metrics, ticks(time.Second)))
	runner.Register(system.NewOutputSystem(store))

	var (
		queryLog  *system.QueryLogSystem
		snapshots *system.SnapshotSystem
	)
	if db != nil {
		if cfg.Database.QueryLog {
			queryLog = system.NewQueryLogSystem(bus, queryRepo, log, ticks(cfg.Database.FlushInterval))
			runner.Register(queryLog)
		}
		interval := 0
		if cfg.Database.SnapshotInterval > 0 {
			interval = ticks(cfg.Database.SnapshotInterval)
		}
		snapshots = system.NewSnapshotSystem(bus, registry, chunkRepo, log, interval)
		runner.Register(snapshots)
	}

	// 8. Start path worker loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	printSection("服務就緒")
	if addr := netServer.Addr(); addr != nil {
		printReady(fmt.Sprintf("TCP 監聽位址 %s", addr.String()))
	}
	if httpServer != nil {
		printReady(fmt.Sprintf("HTTP 監聽位址 %s (ws: %s, metrics: %s)", cfg.HTTP.BindAddress, cfg.HTTP.WebSocketPath, cfg.HTTP.MetricsPath))
	}
	printReady(fmt.Sprintf("尋路迴圈啟動 (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Network.TickRate)
		case sig := <-shutdownCh:
			log.Info("收到關閉信號", zap.String("signal", sig.String()))
			return shutdown(cfg, log, netServer, httpServer, runner, store, queryLog, snapshots)
		}
	}
}

// shutdown stops intake, answers what is already buffered and persists the
// registry. Every step runs even when an earlier one failed.
func shutdown(
	cfg *config.Config,
	log *zap.Logger,
	netServer *gonet.Server,
	httpServer *http.Server,
	runner *coresys.Runner,
	store *gonet.SessionStore,
	queryLog *system.QueryLogSystem,
	snapshots *system.SnapshotSystem,
) error {
	var errs error
	errs = multierr.Append(errs, netServer.Shutdown())
	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = multierr.Append(errs, httpServer.Shutdown(ctx))
		cancel()
	}

	// Deliver pending events and responses before closing sessions.
	runner.TickPhase(coresys.PhaseEvents, 0)
	runner.TickPhase(coresys.PhaseOutput, 0)
	store.CloseAll()

	if queryLog != nil {
		queryLog.Flush()
		if n := queryLog.Buffered(); n > 0 {
			errs = multierr.Append(errs, fmt.Errorf("query log: %d rows not written", n))
		}
	}
	if snapshots != nil && cfg.Database.SnapshotOnShutdown {
		errs = multierr.Append(errs, snapshots.SaveNow())
	}

	if errs != nil {
		log.Error("關閉時發生錯誤", zap.Errors("errors", multierr.Errors(errs)))
	}
	log.Info("服務已停止")
	return errs
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	if cfg.File == "" {
		return zapCfg.Build()
	}

	// The file sink is always JSON so rotated logs stay machine-readable.
	rotated := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	})
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		rotated,
		zapCfg.Level,
	)
	return zapCfg.Build(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	}))
}
