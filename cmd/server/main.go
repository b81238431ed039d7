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

	"github.com/cockroachdb/pebble"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	radix "github.com/mediocregopher/radix/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "livechat/docs"
	"livechat/pkg/auth"
	"livechat/pkg/chat"
	"livechat/pkg/config"
	"livechat/pkg/db"
	"livechat/pkg/events"
	"livechat/pkg/identity"
	"livechat/pkg/logger"
	"livechat/pkg/roster"
	"livechat/pkg/sendemail"
)

// @title           Live Chat API
// @version         1.0
// @description     Polling-based customer chat: widget sessions, conversations and the agent roster.

// @BasePath  /
// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// stores is the backend selected by STORE_DRIVER.
type stores struct {
	identities identity.IdentityRepository
	chat       chat.Store
	close      func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server_failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	var cache *auth.TokenCache
	if cfg.Redis.Addr != "" {
		pool, err := radix.NewPool("tcp", cfg.Redis.Addr, cfg.Redis.PoolSize)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer pool.Close()
		cache = auth.NewTokenCache(pool, cfg.Auth.TokenCacheTTL)
		log.Info("token_cache_enabled", zap.String("addr", cfg.Redis.Addr))
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.RabbitMQ.URL != "" {
		p, err := events.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, log)
		if err != nil {
			return err
		}
		defer p.Close()
		publisher = p
		log.Info("event_publisher_enabled", zap.String("queue", cfg.RabbitMQ.Queue))
	}

	emailService := sendemail.NewEmailService(cfg.SendGrid)
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	agent := auth.AgentAccount{Email: cfg.Agent.Email, Name: cfg.Agent.Name, PasswordHash: cfg.Agent.PasswordHash}
	validator := auth.NewValidator(issuer, agent, identity.NewPrincipalLookup(st.identities), cache, log)

	identityService := identity.NewIdentityService(st.identities, issuer, emailService, log)
	conversationService := chat.NewConversationService(st.chat, publisher, log)
	rosterService := roster.NewRosterService(st.chat, st.identities, log)
	limiter := chat.NewSendLimiter(cfg.Limits.SendRatePerSecond, cfg.Limits.SendBurst)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(logger.GinMiddleware(log), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}))

	auth.NewHandler(validator).RegisterRoutes(router)
	identity.NewIdentityHandler(identityService).RegisterRoutes(router)
	chat.NewHandler(conversationService, validator, limiter, log).RegisterRoutes(router)
	roster.NewRosterHandler(rosterService, validator, log).RegisterRoutes(router)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server_listening", zap.String("addr", srv.Addr), zap.Bool("tls", cfg.TLS.Enabled), zap.String("store", cfg.Store.Driver))
		errCh <- serve(srv, cfg, log)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Info("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info("server_stopped")
	return nil
}

func serve(srv *http.Server, cfg *config.Config, log *zap.Logger) error {
	var err error
	if !cfg.TLS.Enabled {
		err = srv.ListenAndServe()
	} else {
		tlsConfig, certFile, keyFile, tlsErr := buildTLSConfig(cfg)
		if tlsErr != nil {
			return fmt.Errorf("tls setup: %w", tlsErr)
		}
		if certFile == "" {
			log.Warn("tls_without_files", zap.String("env", cfg.Env))
		}
		srv.TLSConfig = tlsConfig
		err = srv.ListenAndServeTLS(certFile, keyFile)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (stores, error) {
	switch cfg.Store.Driver {
	case "pebble":
		kv, err := db.OpenPebble(cfg.Store.PebblePath, log)
		if err != nil {
			return stores{}, err
		}
		return stores{
			identities: identity.NewPebbleIdentityRepository(kv),
			chat:       chat.NewPebbleStore(kv),
			close:      closePebble(kv, log),
		}, nil
	default:
		pool, err := db.Connect(ctx, cfg.Database, log)
		if err != nil {
			return stores{}, err
		}
		return stores{
			identities: identity.NewPostgresIdentityRepository(pool),
			chat:       chat.NewPostgresStore(pool),
			close:      pool.Close,
		}, nil
	}
}

func closePebble(kv *pebble.DB, log *zap.Logger) func() {
	return func() {
		if err := kv.Close(); err != nil {
			log.Warn("pebble_close_failed", zap.Error(err))
		}
	}
}
