package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"outpass.org/internal/auth"
	"outpass.org/internal/config"
	"outpass.org/internal/httpapi"
	"outpass.org/internal/obs"
	"outpass.org/internal/signout"
	"outpass.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.AuthSecret == "" {
		log.Fatal("OUTPASS_AUTH_SECRET must be set")
	}

	var (
		signouts       signout.Service
		authorityStore auth.AuthorityStore
		userStore      auth.UserStore
		readyProbe     httpapi.ReadyProbe
		store          *pg.Store
	)
	if cfg.PostgresDSN != "" {
		store, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		signouts = store
		authorityStore = store
		userStore = store
		readyProbe = httpapi.ReadyProbe{DB: store.DB()}
	} else {
		// DSN-less development mode: volatile in-memory stores.
		log.Println("OUTPASS_PG_DSN not set, running with in-memory stores")
		mem := auth.NewInMemory()
		signouts = signout.NewInMemory()
		authorityStore = mem
		userStore = mem
	}

	authority, err := auth.NewAuthority(authorityStore)
	if err != nil {
		log.Fatalf("authority: %v", err)
	}
	users, err := auth.NewUsers(userStore)
	if err != nil {
		log.Fatalf("users: %v", err)
	}

	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 10*time.Second)
	if err := authority.SeedCatalog(seedCtx); err != nil {
		cancelSeed()
		log.Fatalf("seed permission catalog: %v", err)
	}
	cancelSeed()

	api := httpapi.New(readyProbe, version, signouts, authority, users)
	api.SetLimits(cfg.RateBurst, cfg.RatePerSecond, cfg.MaxBodyBytes)
	api.SetTokenTTL(cfg.TokenTTL)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	log.Printf("Starting outpass-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if store != nil {
		_ = store.Close()
	}
	log.Println("Stopped")
}
