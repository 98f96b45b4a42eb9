package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"eco-mission-system/handlers"
	"eco-mission-system/middleware"
	"eco-mission-system/models"
	"eco-mission-system/services"
	"eco-mission-system/utils"
	"eco-mission-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 25 * 1024 * 1024, // 25MB, evidence photos only
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if os.Getenv("R2_BUCKET_NAME") != "" {
		if err := utils.InitR2(); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
	} else {
		log.Println("⚠️  R2 not configured, evidence uploads fall back to local disk")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Badge{},
		&models.PointTransaction{},
		&models.Report{},
		&models.ReportVerification{},
		&models.Task{},
		&models.TaskAssignment{},
		&models.CompletionProof{},
		&models.Clan{},
		&models.ClanMember{},
		&models.ClanJoinRequest{},
		&models.ClanInvite{},
		&models.ClanActivity{},
		&models.ActivityParticipant{},
		&models.MapPin{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	if err := utils.EnsureUploadDir(); err != nil {
		log.Fatal("failed to ensure upload dir:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Notifier: Redis pub/sub when configured, silent otherwise.
	var notifier services.Notifier = services.NoopNotifier{}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatal("invalid REDIS_URL:", err)
		}
		rn := services.NewRedisNotifier(opts)
		if err := rn.Ping(ctx); err != nil {
			log.Printf("⚠️  Redis unreachable, notifications disabled: %v", err)
		} else {
			notifier = rn
			defer rn.Close()
			log.Println("📣 Redis notifier connected")
		}
	} else {
		log.Println("⚠️  REDIS_URL not set, notifications disabled")
	}

	rewardService := services.NewRewardService(db)
	reportService := services.NewReportService(db, rewardService, notifier)
	taskService := services.NewTaskService(db, rewardService, notifier)
	clanService := services.NewClanService(db, rewardService, notifier)

	validator := services.SimulatedValidator{Delay: 2 * time.Second}
	verdictWorker := workers.NewVerdictWorker(validator, reportService, taskService)
	reportService.Queue = verdictWorker
	taskService.Queue = verdictWorker
	verdictWorker.Start(ctx)

	sched, err := services.StartSchedulers(taskService, clanService)
	if err != nil {
		log.Fatal("failed to start schedulers:", err)
	}

	// ✅ Setup routes — enforced Gateway auth + consistent /s/ prefix
	handlers.SetupReportRoutes(app, reportService)
	handlers.SetupTaskRoutes(app, taskService)
	handlers.SetupClanRoutes(app, clanService, rewardService)
	handlers.SetupPointsRoutes(app, rewardService)
	handlers.SetupMapRoutes(app, db, notifier)
	handlers.SetupUploadRoutes(app)
	handlers.SetupAdminRoutes(app, db, rewardService)

	app.Static("/uploads", "./uploads")

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ Verdict Worker running")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := sched.Shutdown(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}
	verdictWorker.Stop()
	if err := app.Shutdown(); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
