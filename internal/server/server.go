package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/judgeboard/internal/answer"
	"github.com/victornm/judgeboard/internal/api"
	"github.com/victornm/judgeboard/internal/catalog"
	"github.com/victornm/judgeboard/internal/event"
	"github.com/victornm/judgeboard/internal/leaderboard"
	"github.com/victornm/judgeboard/internal/notify"
	"github.com/victornm/judgeboard/internal/result"
	"github.com/victornm/judgeboard/internal/session"
	"github.com/victornm/judgeboard/internal/snapshot"
	"github.com/victornm/judgeboard/internal/store"
	"github.com/victornm/judgeboard/internal/store/memory"
	"github.com/victornm/judgeboard/internal/store/postgres"
	"github.com/victornm/judgeboard/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
		// OpsPort serves /metrics and /debug/pprof on a separate listener when set.
		OpsPort int32
	}

	Redis struct {
		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	// Postgres is optional, an in-memory store is used when Addr is empty.
	Postgres Postgres

	AMQP struct {
		URL      string
		Exchange string
	}

	Judge struct {
		PIN string
	}

	CORS struct {
		AllowOrigins []string
	}
}

type Postgres struct {
	Addr    string
	User    string
	Pass    string
	Name    string
	SSLMode string
}

func (p Postgres) DSN() string {
	if p.Addr == "" {
		return ""
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Pass),
		Host:   p.Addr,
		Path:   p.Name,
	}
	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {p.SSLMode}}.Encode()
	}
	return u.String()
}

// DefaultConfig returns the configuration used for the keys absent from the config file and the environment.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.Redis.Pubsub.Prefix = "judgeboard"
	c.Postgres.SSLMode = "disable"
	c.AMQP.Exchange = notify.DefaultExchange
	c.Judge.PIN = "1234"
	c.CORS.AllowOrigins = []string{"*"}
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
		store    store.Store
		amqp     *notify.AMQPForwarder
	}

	service struct {
		session     *session.Service
		answer      *answer.Service
		result      *result.Service
		snapshot    *snapshot.Service
		catalog     *catalog.Service
		leaderboard *leaderboard.Service
	}

	recorder *notify.Recorder
	hub      *notify.Hub

	http *http.Server
	ops  *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initNotify()
	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	if err := s.initAMQP(); err != nil {
		return fmt.Errorf("amqp: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	if len(s.c.Redis.Pubsub.Addrs) == 0 {
		slog.Warn("server: redis not configured, pubsub and the leaderboard mirror are disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Pubsub.Addrs,
		Password: s.c.Redis.Pubsub.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, pool, err := OpenStore(ctx, s.c.Postgres)
	if err != nil {
		return err
	}

	s.infra.store = st
	s.infra.postgres = pool
	return nil
}

// OpenStore connects to Postgres, or returns an in-memory store when no address is configured.
// The returned pool is nil for the in-memory store.
func OpenStore(ctx context.Context, c Postgres) (store.Store, *pgxpool.Pool, error) {
	if c.Addr == "" {
		slog.WarnContext(ctx, "server: postgres not configured, using the in-memory store")
		return memory.New(), nil, nil
	}

	cc, err := pgxpool.ParseConfig(c.DSN())
	if err != nil {
		return nil, nil, err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, nil, err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	return postgres.New(db), db, nil
}

func (s *Server) initAMQP() error {
	if s.c.AMQP.URL == "" {
		return nil
	}

	f, err := notify.DialAMQP(s.c.AMQP.URL, s.c.AMQP.Exchange)
	if err != nil {
		return err
	}

	s.infra.amqp = f
	return nil
}

func (s *Server) initNotify() {
	s.recorder = notify.NewRecorder(s.infra.store, s.eb)

	s.hub = notify.NewHub()
	s.hub.Register(s.eb)

	if s.infra.redis != nil {
		notify.NewRedisPublisher(s.infra.redis, s.c.Redis.Pubsub.Prefix).Register(s.eb)
	}

	if s.infra.amqp != nil {
		s.infra.amqp.Register(s.eb)
	}
}

func (s *Server) initService() {
	s.service.result = result.NewService(result.Config{
		Store:   s.infra.store,
		Emitter: s.recorder,
	})

	s.service.session = session.NewService(session.Config{
		Store:   s.infra.store,
		Emitter: s.recorder,
		JoinPIN: s.c.Judge.PIN,
	})

	s.service.answer = answer.NewService(answer.Config{
		Store:   s.infra.store,
		Emitter: s.recorder,
	})

	s.service.snapshot = snapshot.NewService(snapshot.Config{
		Store:    s.infra.store,
		Sessions: s.service.session,
		Results:  s.service.result,
	})

	s.service.catalog = catalog.NewService(catalog.Config{
		Store: s.infra.store,
	})

	if s.infra.redis != nil {
		s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
			EventBus: s.eb,
			Results:  s.service.result,
			Redis:    s.infra.redis,
			Prefix:   s.c.Redis.Pubsub.Prefix,
		})
	}
}

func (s *Server) initAPI() {
	e := gin.New()
	e.Use(gin.Recovery(), telemetry.HTTPLogger())
	cc := cors.Config{
		AllowOrigins:  s.c.CORS.AllowOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", api.HeaderHostToken, api.HeaderJudgeToken},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cc.AllowOrigins) == 0 {
		cc.AllowOrigins = []string{"*"}
	}
	e.Use(cors.New(cc))

	ops := e
	if s.c.HTTP.OpsPort != 0 {
		ops = gin.New()
		ops.Use(gin.Recovery())
		s.ops = &http.Server{
			Addr:              fmt.Sprintf(":%d", s.c.HTTP.OpsPort),
			Handler:           ops,
			ReadHeaderTimeout: 60 * time.Second,
		}
	}
	ops.GET("/metrics", gin.WrapH(promhttp.Handler()))
	ops.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	pprof.Register(ops, "/debug/pprof")

	api.New(api.Config{
		Session:  s.service.session,
		Answer:   s.service.answer,
		Result:   s.service.result,
		Snapshot: s.service.snapshot,
		Catalog:  s.service.catalog,
		Events:   s.recorder,
		Hub:      s.hub,
	}).Register(e)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

// Handler returns the API handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves until Shutdown. When a listener fails the other one is closed and the error is returned.
func (s *Server) Start() error {
	ctx := context.TODO()

	serve := func(name string, srv *http.Server) func() error {
		return func() error {
			slog.InfoContext(ctx, fmt.Sprintf("server: %s listening on %s", name, srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.closeServers()
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		}
	}

	var eg errgroup.Group
	eg.Go(serve("HTTP", s.http))
	if s.ops != nil {
		eg.Go(serve("ops HTTP", s.ops))
	}

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: serve failed", "error", err)
		return err
	}
	return nil
}

func (s *Server) closeServers() {
	_ = s.http.Close()
	if s.ops != nil {
		_ = s.ops.Close()
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.hub.Close()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}
	if s.ops != nil {
		if err := s.ops.Shutdown(ctx); err != nil {
			slog.ErrorContext(ctx, "server: shutdown ops HTTP failed", "error", err)
		}
	}

	s.eb.Stop()
	if s.service.leaderboard != nil {
		s.service.leaderboard.Stop()
	}

	if s.infra.amqp != nil {
		if err := s.infra.amqp.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close amqp failed", "error", err)
		}
	}
	if s.infra.redis != nil {
		if err := s.infra.redis.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}
	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
