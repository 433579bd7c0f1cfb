package main

import (
	"database/sql"
	"net/http"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"unihaven/internal/adapters/als"
	server "unihaven/internal/adapters/http_server"
	"unihaven/internal/adapters/notify"
	"unihaven/internal/adapters/observability"
	redisad "unihaven/internal/adapters/redis"
	"unihaven/internal/app"
	"unihaven/internal/shared"
	mysqlrepo "unihaven/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "api")

	observability.Serve()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	universities, err := shared.LoadUniversities(cfg.UniversitiesPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading university registry failed")
	}

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	geocoder := als.New(cfg.ALSBase, cfg.ALSRate)
	notifier := notify.NewLog(log.Logger)

	catalog := app.NewCatalogService(repo, cache, geocoder, notifier, cfg.CacheTTL)
	reservations := app.NewReservationService(repo, cache, notifier, nil)
	ratings := app.NewRatingService(repo, cache, nil)
	search := app.NewSearchService(repo, shared.CampusLocations(universities))

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Catalog:      catalog,
		Reservations: reservations,
		Ratings:      ratings,
		Search:       search,
	})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
