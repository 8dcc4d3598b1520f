package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pagesmith/pagesmith/internal/chunker"
	"github.com/pagesmith/pagesmith/internal/config"
	"github.com/pagesmith/pagesmith/internal/core"
	"github.com/pagesmith/pagesmith/internal/cron"
	"github.com/pagesmith/pagesmith/internal/doctools"
	"github.com/pagesmith/pagesmith/internal/gateway"
	"github.com/pagesmith/pagesmith/internal/mcpserver"
	"github.com/pagesmith/pagesmith/internal/notion"
	"github.com/pagesmith/pagesmith/internal/reload"
	"github.com/pagesmith/pagesmith/internal/security"
	"github.com/pagesmith/pagesmith/internal/session"
	"github.com/pagesmith/pagesmith/internal/telemetry"
	"github.com/pagesmith/pagesmith/internal/tool"
	"github.com/pagesmith/pagesmith/internal/tree"
	journal "github.com/pagesmith/pagesmith/modules/journal/sqlite"
	notionstore "github.com/pagesmith/pagesmith/modules/store/notion"
	"github.com/pagesmith/pagesmith/modules/summarizer/openai"
)

// Runtime is a fully wired application: modules loaded, tools registered,
// sessions ready. Start runs the long-lived parts; one-off commands use the
// registry directly and only Close.
type Runtime struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger
	AppCtx     *core.AppContext
	App        *core.App
	Tools      *tool.Registry
	Sessions   *session.Manager
	MCP        *mcpserver.Server
	Scheduler  *cron.Scheduler
	Reload     *reload.Handler

	started bool
	closers []func(context.Context) error
}

// Build loads and validates the configuration, then wires every component
// without starting anything.
func Build(ctx context.Context, params RunParams) (*Runtime, error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, ConfigPath: cfgPath}
	if err := rt.wire(ctx, params); err != nil {
		_ = rt.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) wire(ctx context.Context, params RunParams) error {
	cfg := rt.Config

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	// Secrets from the configuration are masked in every log record.
	redactor := security.NewRedactor()
	for _, p := range security.DefaultPatterns() {
		redactor.AddPattern(p)
	}
	for _, secret := range collectSecrets(cfg.Modules) {
		redactor.AddLiteral(secret)
	}

	level := cfg.Logging.Level
	if params.LogLevel != "" {
		level = params.LogLevel
	}
	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger, levelVar, err := newLogger(out, level, cfg.Logging.Format, redactor)
	if err != nil {
		return err
	}
	rt.Logger = logger

	metrics := telemetry.NewMetrics()
	tp, shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing)
	if err != nil {
		return err
	}
	rt.closers = append(rt.closers, shutdownTracing)

	auditCfg := security.AuditLoggerConfig{Redactor: redactor}
	if path := cfg.Security.AuditLog; path != "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(dataDir, path)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		rt.closers = append(rt.closers, func(context.Context) error { return f.Close() })
		auditCfg.Writer = f
	}
	auditLogger := security.NewAuditLogger(auditCfg)
	limiter := security.NewRateLimiter(cfg.Security.RateLimits)

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService("config.path", rt.ConfigPath)
	appCtx.RegisterService("security.redactor", redactor)
	appCtx.RegisterService(gateway.AuditServiceName, auditLogger)
	appCtx.RegisterService(gateway.LimiterServiceName, limiter)
	appCtx.RegisterService(telemetry.ServiceName, metrics)
	rt.AppCtx = appCtx

	application := core.NewApp(appCtx)
	ids := config.Resolve(cfg)
	if err := application.LoadModules(ids); err != nil {
		return err
	}
	rt.App = application

	api, ok := core.ServiceAs[notion.API](appCtx, notionstore.ServiceName)
	if !ok {
		return errors.New("store.notion did not register a workspace client")
	}

	reg := tool.NewRegistry(
		tool.WithLogger(logger.With("component", "tools")),
		tool.WithMetrics(metrics),
		tool.WithTracerProvider(tp),
		tool.WithPolicy(cfg.Tools.Policy),
	)
	deps := doctools.Deps{
		API:       api,
		Extractor: tree.NewExtractor(api, logger.With("component", "tree")),
		Chunker: chunker.New(api,
			chunker.WithLimits(cfg.Chunker),
			chunker.WithLogger(logger.With("component", "chunker")),
			chunker.WithMetrics(metrics),
		),
		MaxDepth: cfg.Tools.MaxDepth,
		PageSize: cfg.Tools.PageSize,
	}
	if cfg.Tools.SummarizeEnabled() {
		if s, ok := core.ServiceAs[doctools.Summarizer](appCtx, openai.ServiceName); ok {
			deps.Summarizer = s
		}
	}
	if err := doctools.Register(reg, deps); err != nil {
		return err
	}
	appCtx.RegisterService(tool.ServiceName, reg)
	rt.Tools = reg

	opts := []session.ManagerOption{
		session.WithLogger(logger.With("component", "session")),
		session.WithMetrics(metrics),
	}
	if j, ok := core.ServiceAs[session.Journal](appCtx, journal.ServiceName); ok {
		opts = append(opts, session.WithJournal(j))
	}
	rt.Sessions = session.NewManager(reg, cfg.Sessions, opts...)
	appCtx.RegisterService(session.ServiceName, rt.Sessions)

	rt.MCP = mcpserver.New(reg, rt.Sessions, params.Version, logger.With("component", "mcp"))
	appCtx.RegisterService(mcpserver.ServiceName, http.Handler(rt.MCP.Handler()))

	rt.Scheduler, err = rt.scheduler(metrics)
	if err != nil {
		return err
	}
	application.AppendModule(cron.ModuleID, rt.Scheduler)

	rt.Reload = reload.NewHandler(application, cfg, logger.With("component", "reload"),
		reloadAppliers(params, levelVar, redactor, reg)...)

	logger.Info("runtime wired",
		"modules", len(ids),
		"tools", len(reg.Names()),
		"summarizer", deps.Summarizer != nil,
		"data_dir", dataDir,
	)
	return nil
}

func (rt *Runtime) scheduler(metrics *telemetry.Metrics) (*cron.Scheduler, error) {
	logger := rt.Logger.With("component", "cron")
	s := cron.NewScheduler(logger)
	if err := s.RegisterJob(&cron.SessionPruneJob{
		Sessions:     rt.Sessions,
		MaxIdle:      rt.Config.Sessions.MaxIdle,
		ScheduleExpr: rt.Config.Sessions.PruneSchedule,
		Metrics:      metrics,
		Logger:       logger,
	}); err != nil {
		return nil, err
	}

	if mod, ok := rt.App.Module("journal.sqlite"); ok {
		if jm, ok := mod.(*journal.Module); ok {
			if retention, schedule := jm.Retention(); retention > 0 {
				if err := s.RegisterJob(&cron.JournalTrimJob{
					Journal:      jm.Journal(),
					Retention:    retention,
					ScheduleExpr: schedule,
					Logger:       logger,
				}); err != nil {
					return nil, err
				}
			}
		}
	}
	return s, nil
}

// Start starts every module, the gateway and scheduler included.
func (rt *Runtime) Start() error {
	if err := rt.App.Start(); err != nil {
		return err
	}
	rt.started = true
	return nil
}

// Close cancels live sessions, stops the modules and releases tracing and
// the audit file. It is safe on a partially wired runtime.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Sessions != nil {
		if err := rt.Sessions.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("sessions: %w", err))
		}
	}
	if rt.App != nil {
		if rt.started {
			rt.App.Stop()
		} else {
			rt.App.Close()
		}
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// newLogger builds the root logger: a text or JSON handler behind the
// redacting handler. The returned LevelVar lets a reload change the level.
func newLogger(w io.Writer, level, format string, redactor *security.Redactor) (*slog.Logger, *slog.LevelVar, error) {
	levelVar := new(slog.LevelVar)
	if level != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, nil, fmt.Errorf("logging.level: %w", err)
		}
		levelVar.Set(lvl)
	}
	opts := &slog.HandlerOptions{Level: levelVar}

	var inner slog.Handler
	switch strings.ToLower(format) {
	case "json":
		inner = slog.NewJSONHandler(w, opts)
	default:
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor)), levelVar, nil
}

// reloadAppliers push the process-wide settings of a reloaded
// configuration. Secrets are registered first so a rotated token is
// already masked when the modules log their reload.
func reloadAppliers(params RunParams, levelVar *slog.LevelVar, redactor *security.Redactor, reg *tool.Registry) []reload.Applier {
	return []reload.Applier{
		func(cfg *config.Config) error {
			for _, secret := range collectSecrets(cfg.Modules) {
				redactor.AddLiteral(secret)
			}
			return nil
		},
		func(cfg *config.Config) error {
			if params.LogLevel != "" {
				// --log-level wins over the file for the life of the process.
				return nil
			}
			var lvl slog.Level
			if err := lvl.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
				return fmt.Errorf("logging.level: %w", err)
			}
			levelVar.Set(lvl)
			return nil
		},
		func(cfg *config.Config) error {
			reg.SetPolicy(cfg.Tools.Policy)
			return nil
		},
	}
}

// collectSecrets returns the non-empty scalar values stored under
// credential-looking keys anywhere in the module configurations.
func collectSecrets(modules map[string]yaml.Node) []string {
	var out []string
	var walk func(n *yaml.Node)
	walk = func(n *yaml.Node) {
		switch n.Kind {
		case yaml.DocumentNode, yaml.SequenceNode:
			for _, c := range n.Content {
				walk(c)
			}
		case yaml.MappingNode:
			for i := 0; i+1 < len(n.Content); i += 2 {
				key, val := n.Content[i], n.Content[i+1]
				if val.Kind == yaml.ScalarNode && val.Value != "" && security.IsSecretKey(key.Value) {
					out = append(out, val.Value)
					continue
				}
				walk(val)
			}
		}
	}
	for _, node := range modules {
		walk(&node)
	}
	return out
}
