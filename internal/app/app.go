package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/varoOP/shinkrolist/internal/auth"
	"github.com/varoOP/shinkrolist/internal/catalog"
	"github.com/varoOP/shinkrolist/internal/config"
	"github.com/varoOP/shinkrolist/internal/database"
	"github.com/varoOP/shinkrolist/internal/domain"
	"github.com/varoOP/shinkrolist/internal/genre"
	"github.com/varoOP/shinkrolist/internal/jikan"
	"github.com/varoOP/shinkrolist/internal/logger"
	"github.com/varoOP/shinkrolist/internal/metrics"
	"github.com/varoOP/shinkrolist/internal/notification"
	"github.com/varoOP/shinkrolist/internal/querycache"
	"github.com/varoOP/shinkrolist/internal/repository"
	"github.com/varoOP/shinkrolist/internal/server"
	"github.com/varoOP/shinkrolist/internal/status"
	"github.com/varoOP/shinkrolist/internal/watchlist"
)

type sweeper interface {
	Name() string
	Sweep(olderThan time.Duration) int
}

// App represents the main application with all dependencies initialized
type App struct {
	log      zerolog.Logger
	config   *domain.Config
	db       *database.DB
	repo     domain.StatusRepo
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	lookup *querycache.Cache[*domain.UserStatus]
	caches []sweeper

	catalogService      catalog.Service
	statusCoordinator   *status.Coordinator
	listService         watchlist.Service
	tokens              *auth.Tokens
	notificationService domain.NotificationService
	fileRepo            domain.ListFileRepository
}

// NewApp loads the configuration and creates an application instance with
// all dependencies initialized
func NewApp(version string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	return New(log, cfg, version)
}

// New wires an application from cfg. The caller must Close it.
func New(log zerolog.Logger, cfg *domain.Config, version string) (*App, error) {
	a := &App{
		log:      log,
		config:   cfg,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewMetrics(a.registry)

	switch cfg.DatabaseDriver {
	case domain.StoreDriverMemory:
		a.repo = database.NewMemoryRepo()
	default:
		dsn := cfg.DatabaseDSN
		if cfg.DatabaseDriver == domain.StoreDriverSQLite {
			dsn = cfg.DatabaseDir
		}
		db, err := database.NewDB(cfg.DatabaseDriver, dsn, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.db = db
		a.repo = database.NewStatusRepo(log, db)
	}

	if cfg.AuthSecret != "" {
		tokens, err := auth.NewTokens(cfg.AuthSecret, cfg.AuthTokenTTL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize auth: %w", err)
		}
		a.tokens = tokens
	}

	client := jikan.NewClient(log, cfg.CatalogBaseURL, cfg.CatalogTimeout, version)

	// The genre vocabulary is fetched once and never goes stale.
	remote := querycache.Options{FreshFor: cfg.CacheFreshFor, FetchTimeout: cfg.CatalogTimeout}
	genres := querycache.New[*genre.Vocabulary]("genres", querycache.Options{FetchTimeout: cfg.CatalogTimeout}, log, a.metrics)
	pages := querycache.New[*domain.CatalogPage]("catalog", remote, log, a.metrics)
	details := querycache.New[*domain.CatalogItem]("anime", remote, log, a.metrics)

	// Personal data is only dropped by invalidation after a write.
	a.lookup = querycache.New[*domain.UserStatus]("status", querycache.Options{}, log, a.metrics)
	lists := querycache.New[*domain.ListResult]("list", querycache.Options{}, log, a.metrics)
	counts := querycache.New[domain.StatusCounts]("counts", querycache.Options{}, log, a.metrics)

	a.caches = []sweeper{pages, details, a.lookup, lists, counts}

	a.catalogService = catalog.NewService(log, client, genre.NewService(log, client, genres), pages, details)
	a.statusCoordinator = status.NewCoordinator(log, a.repo, a.lookup, a.metrics)
	a.caches = append(a.caches, a.statusCoordinator)
	a.listService = watchlist.NewService(log, a.repo, cfg.ListPageSize, lists, counts)
	a.notificationService = notification.NewService(log, cfg.DiscordWebhookURL)
	a.fileRepo = repository.NewFileRepository(log)

	a.statusCoordinator.OnSettle(func(_ context.Context, s status.Settled) {
		a.listService.Invalidate(s.UserID)
	})
	if cfg.DiscordWebhookURL != "" {
		a.statusCoordinator.OnSettle(notification.CompletionListener(log, a.notificationService))
	}

	return a, nil
}

func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *App) Config() *domain.Config      { return a.config }
func (a *App) Logger() zerolog.Logger      { return a.log }
func (a *App) Catalog() catalog.Service    { return a.catalogService }
func (a *App) Status() *status.Coordinator { return a.statusCoordinator }
func (a *App) List() watchlist.Service     { return a.listService }

// Session returns ctx carrying the identity of the configured auth.token.
// Without a token ctx is returned unchanged and the caller stays anonymous.
func (a *App) Session(ctx context.Context) (context.Context, error) {
	if a.config.AuthToken == "" || a.tokens == nil {
		return ctx, nil
	}
	sess, err := a.tokens.Parse(a.config.AuthToken)
	if err != nil {
		return ctx, fmt.Errorf("failed to resolve auth.token: %w", err)
	}
	return auth.WithSession(ctx, sess), nil
}

// IssueToken mints a session token for userID.
func (a *App) IssueToken(userID, name string) (string, error) {
	if a.tokens == nil {
		return "", fmt.Errorf("auth.secret is not configured")
	}
	return a.tokens.Issue(auth.Session{UserID: userID, Username: name})
}

// Export writes the caller's whole list to path.
func (a *App) Export(ctx context.Context, path string) (int, error) {
	records, err := a.listService.All(ctx)
	if err != nil {
		return 0, err
	}

	sess, _ := auth.SessionFromContext(ctx)
	user := sess.Username
	if user == "" {
		user = sess.UserID
	}

	export := &domain.ListExport{
		User:       user,
		ExportedAt: time.Now().UTC().Truncate(time.Second),
		Anime:      records,
	}
	if err := a.fileRepo.Store(path, export); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Import stores every entry of the export at path under the caller's
// account, replacing existing entries for the same anime.
func (a *App) Import(ctx context.Context, path string) (int, error) {
	sess, err := auth.RequireSession(ctx)
	if err != nil {
		return 0, err
	}

	export, err := a.fileRepo.Get(path)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, rec := range export.Anime {
		rec.UserID = sess.UserID
		if _, err := a.repo.Upsert(ctx, rec); err != nil {
			a.log.Error().Err(err).Int("anime", rec.ItemID).Msg("Failed to import entry")
			continue
		}
		n++
	}

	a.lookup.InvalidatePrefix(status.UserPrefix(sess.UserID))
	a.listService.Invalidate(sess.UserID)

	a.log.Info().Str("path", path).Int("imported", n).Int("total", len(export.Anime)).Msg("Import complete")
	return n, nil
}

// Migrate applies pending schema migrations.
func (a *App) Migrate() error {
	if a.db == nil {
		return nil
	}
	return a.db.Migrate()
}

// Serve runs the API and the cache sweeper until ctx is done.
func (a *App) Serve(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			if notifyErr := a.notificationService.SendError(context.WithoutCancel(ctx), err); notifyErr != nil {
				a.log.Warn().Err(notifyErr).Msg("Failed to send error notification")
			}
		}
	}()

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	if every := a.config.CacheSweepEvery; every > 0 {
		if _, err := s.Every(every).WaitForSchedule().Do(a.sweep); err != nil {
			return fmt.Errorf("failed to schedule cache sweep: %w", err)
		}
		a.log.Info().Dur("interval", every).Msg("Scheduled cache sweep")
	}
	s.StartAsync()
	defer s.Stop()

	var health server.Pinger
	if a.db != nil {
		health = a.db
	}

	srv := server.NewServer(a.log, server.Options{
		Catalog:  a.catalogService,
		Status:   a.statusCoordinator,
		List:     a.listService,
		Tokens:   a.tokens,
		Metrics:  a.metrics,
		Gatherer: a.registry,
		Health:   health,
	})

	return srv.ListenAndServe(ctx, a.config.ServerAddr)
}

// sweep drops cache entries not refreshed within one sweep interval.
func (a *App) sweep() {
	olderThan := max(a.config.CacheSweepEvery, a.config.CacheFreshFor)
	for _, c := range a.caches {
		if n := c.Sweep(olderThan); n > 0 {
			a.log.Debug().Str("cache", c.Name()).Int("evicted", n).Msg("Swept cache")
		}
	}
}
