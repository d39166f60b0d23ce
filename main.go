package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/EmpoweredVote/geocode/internal/boundary"
	"github.com/EmpoweredVote/geocode/internal/config"
	"github.com/EmpoweredVote/geocode/internal/db"
	"github.com/EmpoweredVote/geocode/internal/geocode"
	"github.com/EmpoweredVote/geocode/internal/logger"
	"github.com/EmpoweredVote/geocode/internal/lookuplog"
	"github.com/EmpoweredVote/geocode/internal/mail"
	"github.com/EmpoweredVote/geocode/internal/metrics"
	"github.com/EmpoweredVote/geocode/internal/middleware"
	"github.com/EmpoweredVote/geocode/internal/overpass"
	"github.com/EmpoweredVote/geocode/internal/wikidata"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	l, err := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = l.Sync() }()

	if err := cfg.Validate(); err != nil {
		l.Fatal("invalid configuration", zap.Error(err))
	}

	gdb, err := db.Connect(cfg.DatabaseURL, l)
	if err != nil {
		l.Fatal("database", zap.Error(err))
	}
	if err := db.EnsurePostGIS(gdb); err != nil {
		l.Warn("could not enable postgis", zap.Error(err))
	}

	recorder := lookuplog.NewRecorder(gdb)
	if err := recorder.Migrate(); err != nil {
		l.Fatal("migrate lookup log", zap.Error(err))
	}

	var notifier mail.Notifier = mail.Discard{}
	if cfg.MailEnabled() {
		notifier = mail.NewSender(mail.Config{
			SMTPHost: cfg.SMTPHost,
			From:     cfg.MailFrom,
			FromName: cfg.MailFromName,
			Admins:   cfg.Admins,
			Headers:  cfg.MailHeaders,
		})
	}

	limit := rate.Inf
	if cfg.WikidataRate > 0 {
		limit = rate.Limit(cfg.WikidataRate)
	}

	kb := wikidata.NewClient(wikidata.Config{
		UserAgent: cfg.UserAgent,
		Limiter:   rate.NewLimiter(limit, 1),
		Notifier:  notifier,
	})

	var cache overpass.Cache = overpass.NoCache{}
	if cfg.UseCache {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			l.Warn("redis ping failed; element cache will miss", zap.Error(err))
		} else {
			l.Info("redis ping ok", zap.String("addr", cfg.RedisAddr))
		}
		cache = overpass.NewRedisCache(rdb, cfg.ElementCacheTTL)
	}
	osm := overpass.NewClient(overpass.Config{
		UserAgent: cfg.UserAgent,
		Limiter:   rate.NewLimiter(limit, 1),
		Cache:     cache,
	})

	store := boundary.NewStore(gdb)
	api, err := geocode.SetupRoutes(geocode.Deps{
		Resolver: geocode.NewResolver(store, kb),
		Polygons: store,
		Elements: osm,
		Recorder: recorder,
		Admin: middleware.BcryptChecker{
			User:         cfg.AdminUser,
			PasswordHash: cfg.AdminPasswordHash,
		},
	})
	if err != nil {
		l.Fatal("routes", zap.Error(err))
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(logger.AccessMiddleware(l))
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Get("/health", RootHandler)
	r.Handle("/metrics", metrics.Handler())
	r.Mount("/", api)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		l.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		l.Error("shutdown", zap.Error(err))
	}
	l.Info("server stopped")
}
