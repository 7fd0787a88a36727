package pilotbuilder

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"image"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/Cheese-boardpilot/internal/boardmap"
	"github.com/park285/Cheese-boardpilot/internal/config"
	"github.com/park285/Cheese-boardpilot/internal/detect"
	"github.com/park285/Cheese-boardpilot/internal/detect/palette"
	"github.com/park285/Cheese-boardpilot/internal/detect/remote"
	"github.com/park285/Cheese-boardpilot/internal/engine/uci"
	"github.com/park285/Cheese-boardpilot/internal/executor"
	"github.com/park285/Cheese-boardpilot/internal/input"
	"github.com/park285/Cheese-boardpilot/internal/input/sim"
	"github.com/park285/Cheese-boardpilot/internal/input/xdo"
	"github.com/park285/Cheese-boardpilot/internal/journal"
	"github.com/park285/Cheese-boardpilot/internal/msgcat"
	"github.com/park285/Cheese-boardpilot/internal/pilot"
	"github.com/park285/Cheese-boardpilot/internal/position"
	"github.com/park285/Cheese-boardpilot/internal/statusfeed"
)

const memoryJournalLimit = 200

// simBoard is where the simulated board sits when BOARD_BOUNDS is unset.
var simBoard = image.Rect(0, 0, 640, 640)

type Deps struct {
	Controller *pilot.Controller
	// Commander is what commands should go through. For the sim backend it
	// also flips the simulated board when a color is selected.
	Commander  statusfeed.Commander
	Dispatcher *statusfeed.Dispatcher
	Hub        *statusfeed.Hub
	Feed       *statusfeed.Server
	Catalog    *msgcat.Catalog
	Journal    *journal.Memory
	Redis      *redis.Client
	DB         *sql.DB
	Surface    *sim.Surface

	events *fanout
}

// OnEvent adds a sink for controller events.
func (d *Deps) OnEvent(fn func(pilot.Event)) { d.events.add(fn) }

// Close shuts the controller down first so the engine is always released,
// then the feed and the stores.
func (d *Deps) Close(ctx context.Context) error {
	var errs []error
	if d.Controller != nil {
		errs = append(errs, d.Controller.Shutdown())
	}
	if d.Feed != nil {
		errs = append(errs, d.Feed.Shutdown(ctx))
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.DB != nil {
		errs = append(errs, d.DB.Close())
	}
	return errors.Join(errs...)
}

func New(cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{events: &fanout{}}
	ok := false
	defer func() {
		if !ok {
			_ = d.Close(context.Background())
		}
	}()

	cat, err := msgcat.New(cfg.MessagesLang, cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	d.Catalog = cat

	// Journal: memory always, redis and postgres when configured.
	d.Journal = journal.NewMemory(memoryJournalLimit)
	recorders := journal.Multi{d.Journal}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, perr := parseRedisURL(cfg.RedisURL)
		if perr != nil {
			return nil, fmt.Errorf("parse redis url: %w", perr)
		}
		d.Redis = redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := d.Redis.Ping(ctx).Err()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		recorders = append(recorders, journal.NewRedisStore(d.Redis, time.Duration(cfg.JournalTTLSec)*time.Second))
	}
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		repo, err := d.openRepository(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, repo)
	}

	// Screen
	order, err := executor.ParsePromotionOrder(cfg.PromotionOrder)
	if err != nil {
		return nil, fmt.Errorf("PROMOTION_ORDER: %w", err)
	}
	backend, surface, err := newInput(cfg, order)
	if err != nil {
		return nil, err
	}
	d.Surface = surface
	reader, err := newReader(cfg, logger)
	if err != nil {
		return nil, err
	}
	exec := executor.New(backend, executor.Config{
		PickDelay:      cfg.PickDelay,
		LegDelay:       cfg.LegDelay,
		SettleDelay:    cfg.SettleDelay,
		PromotionDelay: cfg.PromotionDelay,
		Jitter:         cfg.ClickJitterPx,
		PromotionOrder: order,
	}, executor.WithLogger(logger.Named("executor")))

	ctrl, err := pilot.New(pilot.Config{
		CaptureRegion:    cfg.CaptureRegion,
		Limits:           uci.Limits{Depth: cfg.SearchDepth, MoveTimeMillis: cfg.SearchMoveTimeMS, NodeCap: cfg.SearchNodes},
		SearchTimeout:    cfg.SearchTimeout,
		VerifyReads:      cfg.VerifyReads,
		VerifyReadDelay:  cfg.VerifyReadDelay,
		AutoPollInterval: cfg.AutoPollInterval,
		AutoSettleDelay:  cfg.AutoSettleDelay,
	}, pilot.Deps{
		Input:    backend,
		Reader:   reader,
		Executor: exec,
		Engines:  engineFactory(cfg, logger.Named("uci")),
		Catalog:  cat,
		Journal:  recorders,
		OnEvent:  d.events.emit,
		Logger:   logger.Named("pilot"),
	})
	if err != nil {
		return nil, err
	}
	d.Controller = ctrl
	d.Commander = ctrl
	if surface != nil {
		d.Commander = simCommander{Controller: ctrl, surface: surface}
	}
	d.Dispatcher = statusfeed.NewDispatcher(d.Commander, cat)

	if strings.TrimSpace(cfg.FeedAddr) != "" {
		d.Hub = statusfeed.NewHub(d.Dispatcher, statusfeed.WithLogger(logger.Named("feed")))
		d.Feed = statusfeed.NewServer(cfg.FeedAddr, d.Hub, logger.Named("feed"))
		d.events.add(d.Hub.Publish)
	}

	ok = true
	return d, nil
}

func (d *Deps) openRepository(dsn string) (*journal.Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	d.DB = db
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	repo := journal.NewRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return repo, nil
}

func newInput(cfg *config.AppConfig, order []position.PieceType) (input.Backend, *sim.Surface, error) {
	switch cfg.InputBackend {
	case config.InputXdo:
		return xdo.New(xdo.WithCaptureTool(xdo.DetectCaptureTool(os.Getenv("WAYLAND_DISPLAY")))), nil, nil
	case config.InputSim:
		bounds := cfg.BoardBounds
		if bounds.Empty() {
			bounds = simBoard
		}
		opts := []sim.Option{sim.WithPromotionOrder(order)}
		if !cfg.CaptureRegion.Empty() {
			opts = append(opts, sim.WithCanvas(cfg.CaptureRegion))
		}
		s := sim.New(bounds, boardmap.Normal, opts...)
		return s, s, nil
	}
	return nil, nil, fmt.Errorf("unsupported input backend %q", cfg.InputBackend)
}

func newReader(cfg *config.AppConfig, logger *zap.Logger) (*detect.Adapter, error) {
	switch cfg.Detector {
	case config.DetectorRemote:
		c := remote.New(cfg.DetectorURL,
			remote.WithTimeout(cfg.DetectorTimeout),
			remote.WithConfidence(cfg.DetectorConfidence),
			remote.WithLogger(logger.Named("detector")),
		)
		return detect.NewAdapter(c, cfg.BoardBounds), nil
	case config.DetectorPalette:
		bounds := cfg.BoardBounds
		if bounds.Empty() {
			bounds = simBoard
		}
		return detect.NewAdapter(palette.New(bounds, nil, palette.DefaultTolerance), bounds), nil
	}
	return nil, fmt.Errorf("unsupported detector %q", cfg.Detector)
}

func engineFactory(cfg *config.AppConfig, logger *zap.Logger) pilot.EngineFactory {
	ucfg := uci.Config{
		Path:         cfg.EnginePath,
		Args:         append([]string(nil), cfg.EngineArgs...),
		ReadyTimeout: cfg.EngineReadyTimeout,
	}
	for _, o := range cfg.EngineOptions {
		ucfg.Options = append(ucfg.Options, uci.Option{Name: o.Name, Value: o.Value})
	}
	return func(onInfo func(uci.Info)) pilot.EngineSession {
		return uci.New(ucfg, uci.WithLogger(logger), uci.WithInfoHandler(onInfo))
	}
}

// simCommander keeps the simulated board facing the selected color.
type simCommander struct {
	*pilot.Controller
	surface *sim.Surface
}

func (s simCommander) SelectColor(ctx context.Context, c position.Color) error {
	s.surface.SetOrientation(boardmap.For(c))
	return s.Controller.SelectColor(ctx, c)
}

type fanout struct {
	mu    sync.RWMutex
	sinks []func(pilot.Event)
}

func (f *fanout) add(fn func(pilot.Event)) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, fn)
	f.mu.Unlock()
}

func (f *fanout) emit(ev pilot.Event) {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()
	for _, fn := range sinks {
		fn(ev)
	}
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	host := u.Hostname()
	portStr := u.Port()
	if portStr == "" {
		portStr = "6379"
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		return nil, err
	}
	db := 0
	if u.Path != "" {
		p := strings.TrimPrefix(u.Path, "/")
		if p != "" {
			if n, err := strconv.Atoi(p); err == nil {
				db = n
			}
		}
	}
	pass, _ := u.User.Password()
	opts := &redis.Options{
		Addr:         net.JoinHostPort(host, portStr),
		Username:     u.User.Username(),
		Password:     pass,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}
