package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/postpilothq/postpilot/configs"
	"github.com/postpilothq/postpilot/internal/ai"
	"github.com/postpilothq/postpilot/internal/api/handlers"
	"github.com/postpilothq/postpilot/internal/api/middleware"
	"github.com/postpilothq/postpilot/internal/publisher"
	"github.com/postpilothq/postpilot/internal/queue"
	"github.com/postpilothq/postpilot/internal/repository"
	"github.com/postpilothq/postpilot/internal/scheduler"
	"github.com/postpilothq/postpilot/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	postMediaRepo := repository.NewPostMediaRepository(db)
	mediaAssetRepo := repository.NewMediaAssetRepository(db)
	resultRepo := repository.NewPlatformResultRepository(db)
	attemptRepo := repository.NewPublishAttemptRepository(db)
	settingsRepository := repository.NewSettingsRepository(db)
	apiKeyRepository := repository.NewApiKeyRepository(db)

	registry := publisher.NewRegistry(
		publisher.NewTwitterPublisher(),
		publisher.NewLinkedinPublisher(),
		publisher.NewInstagramPublisher(),
		publisher.NewTiktokPublisher(),
		publisher.NewYoutubePublisher(),
	)

	dispatcher := scheduler.NewDispatcher(
		postRepo,
		resultRepo,
		attemptRepo,
		socialAccountRepo,
		postMediaRepo,
		mediaAssetRepo,
		registry,
		[]byte(cfg.SecretKey),
		cfg.PublishTimeout,
	)
	sched := scheduler.NewScheduler(postRepo, dispatcher, cfg.SchedulerTick, cfg.PostingReclaimAfter)

	authService := service.NewAuthService(*cfg, userRepo)
	userService := service.NewUserService(userRepo)
	mediaService := service.NewMediaService(*cfg, mediaAssetRepo, postMediaRepo)
	postService := service.NewPostService(db, postRepo, resultRepo, attemptRepo, socialAccountRepo, mediaAssetRepo, postMediaRepo, registry, dispatcher, mediaService)
	accountService := service.NewAccountService(*cfg, socialAccountRepo, registry)
	settingsService := service.NewSettingsService(settingsRepository)
	apiKeyService := service.NewApiKeyService(apiKeyRepository)

	generator := ai.NewGenerator(cfg.AnthropicAPIKey)
	queueW := queue.NewQueue(postRepo, settingsRepository, generator)

	authMiddleware := middleware.NewAuthMiddleware(*cfg, apiKeyService)

	auth := handlers.NewAuthHandler(*cfg, authService)
	app.Get("/login", auth.Login)
	app.Get("/login/callback", auth.LoginCallbackHandler)
	app.Get("/logout", auth.Logout)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	user := handlers.NewUserHandler(userService)
	api.Get("/user/info", user.GetInfo)
	api.Post("/user/remove", user.RemoveUser)

	settings := handlers.NewSettingsHandler(settingsService)
	api.Get("/settings/info", settings.GetSettingsInfo)
	api.Post("/settings/update", settings.UpdateSettings)

	apiKeys := handlers.NewApiKeyHandler(apiKeyService)
	api.Post("/api_key/new", apiKeys.CreateKey)
	api.Get("/api_key/list", apiKeys.ListKeys)
	api.Post("/api_key/remove", apiKeys.RemoveKey)

	post := handlers.NewPostHandler(postService, queueW, client)
	api.Post("/posts/create", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Get("/posts/:id", post.PostInfo)
	api.Post("/posts/remove", post.RemovePost)
	api.Get("/posts/:id/results", post.PostResults)
	api.Post("/posts/:id/publish", post.PublishNow)
	api.Post("/posts/:id/generate", post.GenerateCaption)
	api.Get("/history", post.History)

	account := handlers.NewAccountHandler(accountService)
	api.Get("/accounts", account.ListAccounts)
	api.Post("/accounts/remove", account.RemoveAccount)
	api.Get("/accounts/:id/verify", account.VerifyAccount)

	schedulerHandler := handlers.NewSchedulerHandler(sched)
	api.Post("/scheduler/start", schedulerHandler.Start)
	api.Post("/scheduler/stop", schedulerHandler.Stop)
	api.Get("/scheduler/status", schedulerHandler.Status)

	if err := sched.Start(); err != nil {
		log.Fatalf("Could not start scheduler: %v", err)
	}

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypeGenerateCaption, queueW.HandleGenerateCaptionTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db, sched)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB, sched *scheduler.Scheduler) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	sched.Stop()

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
