package main

import (
	"context"
	"docsync-server/auth"
	"docsync-server/cache"
	"docsync-server/collab"
	"docsync-server/config"
	"docsync-server/core"
	"docsync-server/handlers/api/documents"
	"docsync-server/handlers/api/rooms"
	"docsync-server/handlers/websocket"
	"docsync-server/metrics"
	authmw "docsync-server/middleware"
	"docsync-server/stores"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

const shutdownTimeout = 15 * time.Second

func allowOrigin(origins []string) func(r *http.Request, origin string) bool {
	return func(r *http.Request, origin string) bool {
		if origin == "" {
			return false
		}
		for _, allowed := range origins {
			if origin == allowed {
				return true
			}
		}

		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}

		switch parsed.Scheme {
		case "http", "https":
			switch parsed.Hostname() {
			case "localhost", "127.0.0.1", "::1":
				return true
			}
		}

		return false
	}
}

func setupRouter(cfg *config.Config, documentStore core.DocumentStore, engine *collab.Engine, verifier core.TokenVerifier) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	corsOptions := cors.Options{
		AllowOriginFunc:  allowOrigin(cfg.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if len(cfg.CORSOrigins) == 0 {
		corsOptions.AllowOriginFunc = nil
		corsOptions.AllowedOrigins = []string{"*"}
		corsOptions.AllowCredentials = false
	}
	r.Use(cors.Handler(corsOptions))

	var roomRegistry core.RoomRegistry
	if registry, ok := documentStore.(core.RoomRegistry); ok {
		roomRegistry = registry
	}

	r.Route("/api", func(r chi.Router) {
		if verifier != nil {
			r.Use(authmw.AuthJWT(verifier))
		}
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", documents.HandleCreate(documentStore))
			r.Get("/{id}", documents.HandleGet(documentStore))
		})
		r.Get("/rooms", rooms.HandleList(engine, roomRegistry))
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

func waitForShutdown(server *http.Server, ioo *socketio.Server, engine *collab.Engine, closers ...io.Closer) {
	exit := make(chan struct{})
	SignalC := make(chan os.Signal, 1)

	signal.Notify(SignalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range SignalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	logrus.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := engine.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Pending edits were not flushed")
	}
	ioo.Close(nil)
	if err := server.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server shutdown")
	}
	for _, closer := range closers {
		if err := closer.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close resource")
		}
	}
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logrus.SetLevel(cfg.LogLevel)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	documentStore, err := stores.GetStore(ctx, cfg.Storage)
	if err != nil {
		logrus.WithField("event", "open storage").Fatal(err)
	}
	roomCache, err := cache.GetCache(ctx, cfg.Cache)
	if err != nil {
		logrus.WithField("event", "open cache").Fatal(err)
	}

	var verifier core.TokenVerifier
	if cfg.Auth.Secret != "" {
		verifier = auth.NewVerifier(cfg.Auth.Secret)
	}

	engine := collab.New(collab.Options{
		Store:        documentStore,
		Cache:        roomCache,
		Verifier:     verifier,
		AuthRequired: cfg.Auth.Required,
		FlushDelay:   cfg.FlushDelay,
		FlushTimeout: cfg.FlushTimeout,
		CacheTTL:     cfg.Cache.TTL,
		CacheIdleTTL: cfg.Cache.IdleTTL,
		Logger:       logrus.StandardLogger(),
		Metrics:      metrics.New(prometheus.DefaultRegisterer),
	})

	r := setupRouter(cfg, documentStore, engine, verifier)
	ioo := websocket.SetupSocketIO(engine, cfg.CORSOrigins)
	r.Handle("/socket.io/", ioo.ServeHandler(nil))

	server := &http.Server{Addr: cfg.ListenAddr, Handler: r}

	logrus.WithFields(logrus.Fields{
		"addr":       cfg.ListenAddr,
		"flushDelay": cfg.FlushDelay,
		"auth":       verifier != nil,
	}).Info("starting server")
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	closers := []io.Closer{roomCache}
	if closer, ok := documentStore.(io.Closer); ok {
		closers = append(closers, closer)
	}

	logrus.Debug("Server is running in the background")
	waitForShutdown(server, ioo, engine, closers...)
	stop()
}
