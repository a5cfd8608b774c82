package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tasktracker/internal/auth"
	"tasktracker/internal/cache"
	"tasktracker/internal/config"
	"tasktracker/internal/policy"
	"tasktracker/internal/repo"
	"tasktracker/internal/service"
	"tasktracker/migrations"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
)

type App struct {
	cfg    config.Config
	log    *slog.Logger
	db     *pgxpool.Pool
	redis  *redis.Client
	router *gin.Engine

	Tasks    *service.TaskService
	Users    *service.UserService
	Sessions *auth.Store
}

// New connects the stores, applies migrations and builds the router.
func New(cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}

	tasks, users, err := a.openStorage()
	if err != nil {
		return nil, err
	}

	rdb, err := newRedis(cfg.Redis)
	if err != nil {
		a.closeDB()
		return nil, err
	}
	a.redis = rdb

	p, err := policy.New(policy.Variant(cfg.Tasks.Policy))
	if err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	log.Info("task policy selected", "variant", p.Variant())

	lists := cache.NewTaskCache(rdb, cfg.Redis.DefaultTTL.Duration())
	a.Sessions = auth.NewStore(rdb, cfg.Session.TTL.Duration())
	a.Tasks = service.NewTaskService(tasks, lists, p, log)
	a.Users = service.NewUserService(users, tasks).WithTaskCache(lists)

	a.router = newRouter(cfg, log)
	Setup(a.router, a)
	return a, nil
}

// NewStorageOnly opens the user and task stores for tooling that serves
// no HTTP. Redis is connected only when configured, and then only to
// drop cached task listings after account removal.
func NewStorageOnly(cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}
	tasks, users, err := a.openStorage()
	if err != nil {
		return nil, err
	}
	a.Users = service.NewUserService(users, tasks)
	if !cfg.HasRedis() {
		return a, nil
	}
	rdb, err := newRedis(cfg.Redis)
	if err != nil {
		a.closeDB()
		return nil, err
	}
	a.redis = rdb
	a.Users.WithTaskCache(cache.NewTaskCache(rdb, cfg.Redis.DefaultTTL.Duration()))
	return a, nil
}

func (a *App) openStorage() (repo.TaskRepo, repo.UserRepo, error) {
	if a.cfg.PG.Driver == config.StorageMemory {
		a.log.Warn("using in-memory storage, data is lost on restart")
		store := repo.NewMemoryStore()
		return store.Tasks(), store.Users(), nil
	}
	db, err := newPostgres(a.cfg.PG.DSN)
	if err != nil {
		return nil, nil, err
	}
	a.db = db
	if err := runMigrations(a.cfg.PG.DSN, a.log); err != nil {
		a.closeDB()
		return nil, nil, err
	}
	return repo.NewPGTaskRepo(db), repo.NewPGUserRepo(db), nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// Ping checks the backing stores.
func (a *App) Ping(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *App) Close(ctx context.Context) error {
	_ = ctx
	var err error
	if a.redis != nil {
		err = a.redis.Close()
	}
	a.closeDB()
	return err
}

func (a *App) closeDB() {
	if a.db != nil {
		a.db.Close()
	}
}

func newPostgres(dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg parse config: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}

	return pool, nil
}

func newRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return rdb, nil
}

// gooseLogger routes goose output through slog.
type gooseLogger struct{ log *slog.Logger }

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.log.Info(fmt.Sprintf(format, v...), "component", "goose")
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Error(fmt.Sprintf(format, v...), "component", "goose")
}

func runMigrations(dsn string, log *slog.Logger) error {
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return fmt.Errorf("goose open db: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{log: log})
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
