// README: Entry point; loads config, wires module services, starts the HTTP
// server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/eden-magar/towing-saas-sub002/internal/config"
	httptransport "github.com/eden-magar/towing-saas-sub002/internal/http"
	"github.com/eden-magar/towing-saas-sub002/internal/infra"
	"github.com/eden-magar/towing-saas-sub002/internal/logging"
	"github.com/eden-magar/towing-saas-sub002/internal/maps"
	"github.com/eden-magar/towing-saas-sub002/internal/modules/cash"
	"github.com/eden-magar/towing-saas-sub002/internal/modules/pricing"
	"github.com/eden-magar/towing-saas-sub002/internal/modules/tow"
	"github.com/eden-magar/towing-saas-sub002/internal/notify"
	"github.com/eden-magar/towing-saas-sub002/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.WithError(err).Fatal("db init")
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	var distance tow.DistanceProvider
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.WithError(err).Fatal("maps init")
		}
		distance = routes
	} else {
		log.Warn("TOWING_MAPS_KEY not set; road-distance lookups disabled")
	}

	photos, err := storage.NewLocal(cfg.Photos.Dir, cfg.Photos.BaseURL)
	if err != nil {
		log.WithError(err).Fatal("photo storage init")
	}

	notifier := &notify.LogNotifier{Log: log}

	pricingSvc := pricing.NewService(pricing.NewStore(dbPool))
	cashSvc := cash.NewService(cash.NewStore(dbPool))

	towStore := tow.NewStore(dbPool)
	towCache := tow.NewCache(redisClient)
	finalizer := tow.NewFinalizer(towStore, pricingSvc, distance, notifier, log)
	towSvc := tow.NewService(towStore, towCache, pricingSvc, finalizer, notifier, log)
	execCtrl := tow.NewController(towStore, towCache, finalizer, cashSvc,
		distance, notifier, log, cfg.Evidence.MinPhotosPerVehicle)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Tows:    towSvc,
		Exec:    execCtrl,
		Cash:    cashSvc,
		Pricing: pricingSvc,
		Photos:  photos,
		Log:     log,
	})

	server := httptransport.NewServer(cfg.HTTP.Addr, router, log)
	log.WithField("addr", cfg.HTTP.Addr).Info("listening")
	if err := server.Run(ctx); err != nil {
		log.WithError(err).Fatal("server")
	}
}
