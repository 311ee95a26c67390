package main

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/myrjola/fitcoach/internal/advisor"
	"github.com/myrjola/fitcoach/internal/athlete"
	"github.com/myrjola/fitcoach/internal/calendar"
	"github.com/myrjola/fitcoach/internal/envstruct"
	"github.com/myrjola/fitcoach/internal/errors"
	"github.com/myrjola/fitcoach/internal/flightrecorder"
	"github.com/myrjola/fitcoach/internal/goal"
	"github.com/myrjola/fitcoach/internal/logging"
	"github.com/myrjola/fitcoach/internal/plan"
	"github.com/myrjola/fitcoach/internal/review"
	"github.com/myrjola/fitcoach/internal/sqlite"
	"github.com/myrjola/fitcoach/internal/wellness"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
)

type application struct {
	logger         *slog.Logger
	db             *sqlite.Database
	sessionManager *scs.SessionManager
	templateFS     fs.FS
	athletes       *athlete.Service
	goals          *goal.Service
	wellness       *wellness.Service
	scheduler      *plan.Scheduler
	manager        *review.Manager
	traces         *flightrecorder.Recorder
	exportDir      string
	now            func() time.Time
}

type config struct {
	// Addr is the address to listen on. It's possible to choose the address dynamically with localhost:0.
	Addr string `env:"FITCOACH_ADDR" envDefault:"localhost:8081"`
	// SqliteURL is the URL to the SQLite database. You can use ":memory:" for an ethereal in-memory database.
	SqliteURL string `env:"FITCOACH_SQLITE_URL" envDefault:"./fitcoach.sqlite3"`
	// LogLevel is one of debug, info, warn, or error.
	LogLevel string `env:"FITCOACH_LOG_LEVEL" envDefault:"debug"`
	// TemplatePath is the path to the directory containing the HTML templates.
	TemplatePath string `env:"FITCOACH_TEMPLATE_PATH" envDefault:""`
	// PlanPath is an optional TOML or YAML plan definition. The embedded default plan is used when empty.
	PlanPath string `env:"FITCOACH_PLAN_PATH" envDefault:""`
	// OpenAIAPIKey enables the OpenAI evaluator.
	OpenAIAPIKey string `env:"FITCOACH_OPENAI_API_KEY" envDefault:""`
	OpenAIModel  string `env:"FITCOACH_OPENAI_MODEL" envDefault:"gpt-4o"`
	// AutoApplyConfidence is the evaluation confidence from which high priority modifications are applied.
	AutoApplyConfidence float64 `env:"FITCOACH_AUTO_APPLY_CONFIDENCE" envDefault:"0.7"`
	// WellnessURL enables the HTTP wellness provider.
	WellnessURL   string `env:"FITCOACH_WELLNESS_URL" envDefault:""`
	WellnessToken string `env:"FITCOACH_WELLNESS_TOKEN" envDefault:""`
	// GoogleCredentialsFile enables Google Calendar sync.
	GoogleCredentialsFile string `env:"FITCOACH_GOOGLE_CREDENTIALS_FILE" envDefault:""`
	GoogleCalendarID      string `env:"FITCOACH_GOOGLE_CALENDAR_ID" envDefault:"primary"`
	// NightlyHour is the local hour at which the nightly jobs run. A negative hour disables them.
	NightlyHour int `env:"FITCOACH_NIGHTLY_HOUR" envDefault:"3"`
	// TracesDir enables the flight recorder. Traces of timed out requests and slow nightly runs are written there.
	TracesDir string `env:"FITCOACH_TRACES_DIR" envDefault:""`
	// ExportDir is where athlete archives are written before download. Defaults to the OS temp dir.
	ExportDir string `env:"FITCOACH_EXPORT_DIR" envDefault:""`
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	var (
		cancel context.CancelFunc
		err    error
	)

	ctx, cancel = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err = envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config")
	}

	var htmlTemplatePath string
	if htmlTemplatePath, err = resolveAndVerifyTemplatePath(cfg.TemplatePath); err != nil {
		return errors.Wrap(err, "resolve template path")
	}

	definition := plan.DefaultDefinition()
	if cfg.PlanPath != "" {
		if definition, err = plan.LoadDefinition(cfg.PlanPath); err != nil {
			return errors.Wrap(err, "load plan definition", slog.String("path", cfg.PlanPath))
		}
	}

	db, err := sqlite.NewDatabase(ctx, cfg.SqliteURL, logger)
	if err != nil {
		return errors.Wrap(err, "open db", slog.String("url", cfg.SqliteURL))
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "connected to db")

	evaluator := newEvaluator(ctx, cfg, logger)
	provider, err := newWellnessProvider(ctx, cfg, logger)
	if err != nil {
		return errors.Wrap(err, "new wellness provider")
	}
	syncer, err := newCalendarSyncer(ctx, cfg, logger)
	if err != nil {
		return errors.Wrap(err, "new calendar syncer")
	}

	goals := goal.NewService(db, logger)
	wellnessService := wellness.NewService(db, provider, goals, logger)
	scheduler := plan.NewScheduler(db, definition, logger)
	managerConfig := review.DefaultConfig()
	managerConfig.AutoApplyConfidence = cfg.AutoApplyConfidence

	traces, err := newFlightRecorder(ctx, cfg, logger)
	if err != nil {
		return errors.Wrap(err, "new flight recorder")
	}
	defer traces.Stop(context.WithoutCancel(ctx))

	exportDir := cfg.ExportDir
	if exportDir == "" {
		exportDir = os.TempDir()
	}

	app := application{
		logger:         logger,
		db:             db,
		sessionManager: initializeSessionManager(db),
		templateFS:     os.DirFS(htmlTemplatePath),
		athletes:       athlete.NewService(db, logger),
		goals:          goals,
		wellness:       wellnessService,
		scheduler:      scheduler,
		manager: review.NewManager(db, scheduler, goals, wellnessService, evaluator, syncer, managerConfig,
			logger),
		traces:    traces,
		exportDir: exportDir,
		now:       time.Now,
	}

	var handler http.Handler
	if handler, err = app.routes(); err != nil {
		return errors.Wrap(err, "configure routes")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.configureAndStartServer(gctx, cfg.Addr, handler)
	})
	if cfg.NightlyHour >= 0 {
		g.Go(func() error {
			app.runNightly(gctx, cfg.NightlyHour)
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return errors.Wrap(err, "run")
	}
	return nil
}

// newEvaluator returns the OpenAI evaluator when an API key is configured.
func newEvaluator(ctx context.Context, cfg config, logger *slog.Logger) advisor.Evaluator {
	if cfg.OpenAIAPIKey == "" {
		logger.LogAttrs(ctx, slog.LevelInfo, "advisor disabled, no OpenAI API key")
		return advisor.Unavailable{}
	}
	return advisor.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, logger)
}

func newWellnessProvider(ctx context.Context, cfg config, logger *slog.Logger) (wellness.Provider, error) {
	if cfg.WellnessURL == "" {
		logger.LogAttrs(ctx, slog.LevelInfo, "wellness import disabled, no provider url")
		return wellness.Unavailable{}, nil
	}
	provider, err := wellness.NewHTTPProvider(cfg.WellnessURL, cfg.WellnessToken, logger)
	if err != nil {
		return nil, errors.Wrap(err, "new http provider")
	}
	return provider, nil
}

func newCalendarSyncer(ctx context.Context, cfg config, logger *slog.Logger) (calendar.Syncer, error) {
	if cfg.GoogleCredentialsFile == "" {
		logger.LogAttrs(ctx, slog.LevelInfo, "calendar sync disabled, no credentials")
		return calendar.Disabled{}, nil
	}
	syncer, err := calendar.NewGoogle(ctx, cfg.GoogleCalendarID, logger,
		option.WithCredentialsFile(cfg.GoogleCredentialsFile))
	if err != nil {
		return nil, errors.Wrap(err, "new google calendar")
	}
	return syncer, nil
}

// newFlightRecorder returns a started recorder, or nil when no traces directory is configured.
func newFlightRecorder(ctx context.Context, cfg config, logger *slog.Logger) (*flightrecorder.Recorder, error) {
	if cfg.TracesDir == "" {
		return nil, nil //nolint:nilnil // a nil recorder captures nothing.
	}
	traces, err := flightrecorder.New(flightrecorder.Config{ //nolint:exhaustruct // defaults.
		Logger: logger,
		Dir:    cfg.TracesDir,
	})
	if err != nil {
		return nil, errors.Wrap(err, "configure flight recorder", slog.String("dir", cfg.TracesDir))
	}
	if err = traces.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "start flight recorder")
	}
	return traces, nil
}

func initializeSessionManager(dbs *sqlite.Database) *scs.SessionManager {
	sessionManager := scs.New()
	sessionManager.Store = sqlite3store.NewWithCleanupInterval(dbs.ReadWrite, 24*time.Hour) //nolint:mnd // day
	sessionManager.Lifetime = 12 * time.Hour                                                //nolint:mnd // half a day
	sessionManager.Cookie.Persist = true
	sessionManager.Cookie.Secure = true
	sessionManager.Cookie.HttpOnly = true
	sessionManager.Cookie.SameSite = http.SameSiteStrictMode
	return sessionManager
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

func main() {
	ctx := context.Background()
	level, _ := os.LookupEnv("FITCOACH_LOG_LEVEL")
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       parseLevel(level),
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure starting application", errors.SlogError(err))
		os.Exit(1)
	}
}
