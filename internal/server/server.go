package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/livequiz/internal/api"
	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/leaderboard"
	"github.com/victornm/livequiz/internal/quiz"
	"github.com/victornm/livequiz/internal/session"
	"github.com/victornm/livequiz/internal/store/memory"
	"github.com/victornm/livequiz/internal/store/postgres"
	"github.com/victornm/livequiz/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Logging struct {
		Level string
	}

	// Empty addresses select the in-memory implementations.
	Redis struct {
		Cache struct {
			Addrs  []string
			Pass   string
			Prefix string
			TTL    time.Duration
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres PostgresConfig

	Quiz struct {
		// SeedFile is a YAML file of quizzes saved at startup.
		SeedFile string
	}

	Game struct {
		PublishInterval time.Duration
	}
}

type PostgresConfig struct {
	Addr string
	User string
	Pass string
	Name string
}

// DSN returns the connection URL, or "" when postgres is not configured.
func (c PostgresConfig) DSN() string {
	if c.Addr == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s/%s", c.User, c.Pass, c.Addr, c.Name)
}

// DefaultConfig runs everything in memory.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 9090
	c.Logging.Level = "info"
	c.Redis.Cache.Prefix = "livequiz"
	c.Redis.Cache.TTL = quiz.DefaultCacheTTL
	c.Redis.Pubsub.Prefix = "livequiz"
	c.Game.PublishInterval = leaderboard.DefaultPublishInterval
	return c
}

// InitLogger installs a JSON slog handler at the configured level as the default logger.
func InitLogger(c Config) error {
	var level slog.Level
	if c.Logging.Level != "" {
		if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
			return fmt.Errorf("logging level: %w", err)
		}
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
	return nil
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			cache  redis.UniversalClient
			pubsub redis.UniversalClient
		}

		postgres *pgxpool.Pool
	}

	service struct {
		quizzes     quiz.Repository
		session     *session.Service
		leaderboard *leaderboard.Service
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus(event.WithHandlerTimeout(10 * time.Second))

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

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

	return nil
}

func (s *Server) initRedis() error {
	connect := func(name string, addrs []string, pass string) (redis.UniversalClient, error) {
		if len(addrs) == 0 {
			slog.Warn("server: redis not configured", "client", name)
			return nil, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r, name); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.cache, err = connect("cache", s.c.Redis.Cache.Addrs, s.c.Redis.Cache.Pass)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	s.infra.redis.pubsub, err = connect("pubsub", s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	dsn := s.c.Postgres.DSN()
	if dsn == "" {
		slog.Warn("server: postgres not configured, sessions and quizzes are kept in memory")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() error {
	var store session.Store
	if db := s.infra.postgres; db != nil {
		s.service.quizzes = quiz.NewPostgres(db)
		store = postgres.New(db)
	} else {
		qm, err := quiz.NewMemory()
		if err != nil {
			return err
		}
		s.service.quizzes = qm
		store = memory.New()
	}

	if f := s.c.Quiz.SeedFile; f != "" {
		if err := Seed(context.Background(), s.service.quizzes, f); err != nil {
			return err
		}
	}

	var quizzes quiz.Provider = s.service.quizzes
	if r := s.infra.redis.cache; r != nil {
		quizzes = quiz.NewCache(quiz.CacheConfig{
			Provider: s.service.quizzes,
			Redis:    r,
			Prefix:   s.c.Redis.Cache.Prefix,
			TTL:      s.c.Redis.Cache.TTL,
		})
	}

	clock := clockwork.NewRealClock()

	s.service.session = session.NewService(session.Config{
		EventBus: s.eb,
		Store:    store,
		Quizzes:  quizzes,
		Clock:    clock,
	})

	if r := s.infra.redis.pubsub; r != nil {
		s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
			EventBus: s.eb,
			Leaderboard: func(ctx context.Context, sessionID string) (*domain.Leaderboard, error) {
				return s.service.session.GetLeaderboard(ctx, session.GetLeaderboardRequest{SessionID: sessionID})
			},
			Redis:    r,
			Prefix:   s.c.Redis.Pubsub.Prefix,
			Interval: s.c.Game.PublishInterval,
			Clock:    clock,
		})
	}

	if _, err := telemetry.NewMetrics(prometheus.DefaultRegisterer, s.eb); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	return nil
}

// Seed validates the quizzes of a YAML file and saves them into r.
func Seed(ctx context.Context, r quiz.Repository, file string) error {
	quizzes, err := quiz.LoadFile(file)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	for _, q := range quizzes {
		if err := r.SaveQuiz(ctx, q); err != nil {
			return fmt.Errorf("seed: quiz %s: %w", q.ID, err)
		}
	}

	slog.InfoContext(ctx, "server: quizzes seeded", "file", file, "count", len(quizzes))
	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.Use(gin.Recovery())
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	pprof.Register(e, "/debug/pprof")

	c := api.Config{
		Router:       e,
		EventBus:     s.eb,
		Session:      s.service.session,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	}
	if s.infra.redis.pubsub != nil {
		c.Redis = s.infra.redis.pubsub
	}
	api.New(c)

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor(), telemetry.GRPCStreamInterceptor())
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	for _, r := range []redis.UniversalClient{s.infra.redis.cache, s.infra.redis.pubsub} {
		if r != nil {
			_ = r.Close()
		}
	}
	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
