package main

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"unihaven/internal/adapters/als"
	"unihaven/internal/adapters/observability"
	redisad "unihaven/internal/adapters/redis"
	"unihaven/internal/shared"
	mysqlrepo "unihaven/internal/storage/mysql"
)

// Backfills coordinates for listings whose geocoding failed at creation
// time. Safe to run repeatedly; only unresolved listings are touched.
func main() {
	ctx := context.Background()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv, "geocoder")

	log.Info().
		Str("base", cfg.ALSBase).
		Int("workers", cfg.Workers).
		Msg("geocode backfill starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	client := als.New(cfg.ALSBase, cfg.ALSRate)

	pending, err := repo.ListUnresolved(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("listing unresolved addresses failed")
	}
	log.Info().Int("count", len(pending)).Msg("unresolved listings found")

	sem := semaphore.NewWeighted(int64(cfg.Workers))
	var wg sync.WaitGroup

	for _, l := range pending {
		l := l

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			coords, geoAddr, err := client.Resolve(ctx, l.Address)
			if err != nil {
				log.Warn().Int64("id", l.ID).Str("address", l.Address).Err(err).Msg("geocode failed")
				return
			}
			if err := repo.SetListingLocation(ctx, l.ID, coords, geoAddr); err != nil {
				log.Warn().Int64("id", l.ID).Err(err).Msg("storing location failed")
				return
			}
			if err := cache.Del(ctx, shared.ListingCacheKey(l.ID)); err != nil {
				log.Warn().Int64("id", l.ID).Err(err).Msg("cache invalidation failed")
			}
			log.Info().Int64("id", l.ID).Float64("lat", coords.Lat).Float64("lon", coords.Lon).Msg("geocode ok")
		}()
	}

	wg.Wait()
	log.Info().Msg("geocode backfill completed")
}
