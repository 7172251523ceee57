package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/DXD-Magante/dxd-magnate-sub002/api"
	"github.com/DXD-Magante/dxd-magnate-sub002/storage"
)

const boardUpdatesChannel = "board-updates"

func main() {
	logger := log.New()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		logger.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	cfg := storage.Config{
		TasksTable:        os.Getenv("TASKS_TABLE"),
		ProjectsTable:     os.Getenv("PROJECTS_TABLE"),
		ActivityQueue:     os.Getenv("ACTIVITY_QUEUE"),
		NotificationQueue: os.Getenv("NOTIFICATION_QUEUE"),
	}
	if connStr == "" || cfg.TasksTable == "" || cfg.ProjectsTable == "" || cfg.ActivityQueue == "" || cfg.NotificationQueue == "" {
		logger.Fatal("missing storage config")
	}
	base, err := storage.New(connStr, cfg)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		logger.Fatal("missing redis config")
	}
	rc := redis.NewClient(redisOptions(redisConn, logger))

	cacheTTL := durationEnv(logger, "BOARD_CACHE_TTL", 5*time.Minute)
	store := storage.NewCache(base, rc, cacheTTL, boardUpdatesChannel, logger)

	stream := storage.NewStream(rc, boardUpdatesChannel, store, logger)
	streamCtx, stopStream := context.WithCancel(context.Background())
	defer stopStream()
	stream.Start(streamCtx)
	defer stream.Close()

	workers := intEnv(logger, "WRITER_WORKERS", 0)
	buffer := intEnv(logger, "WRITER_BUFFER", 0)
	writer := storage.NewAsyncWriter(workers, buffer, 0, 0, logger)
	defer writer.Close()

	deduper := api.NewRedisDeduper(rc, durationEnv(logger, "DEDUPER_TTL", 24*time.Hour))

	auth := buildAuth(logger)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echoprometheus.NewMiddleware("board_api"))
	e.Use(api.GzipRequestMiddleware())
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, store, stream, auth, deduper, writer, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

func buildAuth(logger *log.Logger) *api.Auth {
	if os.Getenv("AUTH_TEST_MODE") == "1" || os.Getenv("LOCAL_AUTH_MODE") != "" {
		return api.NewAuth(nil, "", "")
	}
	audience := os.Getenv("AUTH_AUDIENCE")
	domain := os.Getenv("AUTH_DOMAIN")
	if audience == "" || domain == "" {
		logger.Fatal("missing auth config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		logger.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, audience, "https://"+domain+"/")
}

// redisOptions accepts both redis URLs and the comma-separated
// host,password,ssl form some hosting providers emit.
func redisOptions(conn string, logger *log.Logger) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	if opts.Addr == "" {
		logger.Fatal("invalid REDIS_CONNECTION_STRING")
	}
	return opts
}

func durationEnv(logger *log.Logger, name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logger.Fatalf("invalid %s: %v", name, err)
	}
	return d
}

func intEnv(logger *log.Logger, name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		logger.Fatalf("invalid %s: %v", name, err)
	}
	return n
}
