package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/chainlens/chainlens/internal/pkg/cache"
	"github.com/chainlens/chainlens/internal/pkg/database"
	"github.com/chainlens/chainlens/internal/pkg/env"
	"github.com/chainlens/chainlens/internal/pkg/metrics/counter"
	"github.com/chainlens/chainlens/internal/pkg/router"
	"github.com/chainlens/chainlens/internal/pkg/webhooks"
)

func main() {
	app := NewApplication()

	dispatcher := webhooks.GetDispatcher()
	dispatcher.Start()

	// Flush batched usage counters from Redis into the database.
	flushTicker := time.NewTicker(time.Minute)
	go func() {
		for range flushTicker.C {
			if err := counter.FlushAll(); err != nil {
				log.Printf("usage counter flush failed: %v", err)
			}
		}
	}()

	// Graceful shutdown: let in-flight webhook deliveries finish.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		flushTicker.Stop()
		if err := counter.FlushAll(); err != nil {
			log.Printf("final usage counter flush failed: %v", err)
		}
		dispatcher.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "ChainLens",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
