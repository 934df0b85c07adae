package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dailyvote-bot/cache"
	"dailyvote-bot/config"
	"dailyvote-bot/database"
	"dailyvote-bot/discord"
	"dailyvote-bot/handlers"
	"dailyvote-bot/imagegen"
	"dailyvote-bot/mq"
	"dailyvote-bot/repository"
	"dailyvote-bot/routes"
	"dailyvote-bot/service"
	"dailyvote-bot/social"
	"dailyvote-bot/websocket"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const leaderboardKey = "dailyvote:leaderboard"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer database.Close(db)

	// Redis is optional: without it the leaderboard reads SQL, locks are
	// process-local and the redis event driver is disabled.
	var (
		redisClient *redis.Client
		board       *cache.Leaderboard
		locker      service.Locker
		queueClient cache.RedisClient
	)
	redisClient, err = cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	switch {
	case err == nil:
		board = cache.NewLeaderboard(redisClient, leaderboardKey)
		locker = cache.NewLockService(redisClient)
		queueClient = redisClient
		defer redisClient.Close()
	case errors.Is(err, cache.ErrRedisNotAvailable):
		log.Printf("cache: running without redis: %v", err)
	default:
		log.Fatalf("cache: %v", err)
	}

	events, err := mq.NewPublisher(mq.Options{
		Driver:     cfg.MQDriver,
		Topic:      cfg.MQTopic,
		NameServer: cfg.RocketNameServer,
	}, queueClient)
	if err != nil {
		log.Fatalf("mq: %v", err)
	}
	defer events.Close()

	hub := websocket.NewHub()
	go hub.Run(ctx)

	limiter := cache.NewUserRateLimiter(cfg.UserRate, cfg.UserBurst)
	go cleanupLimiter(ctx, limiter)

	records := repository.NewRecordRepository(db)
	engine := service.NewPollEngine(service.NewVoteStore(), repository.NewVoteEventRepository(db), service.SystemClock{})
	ledger := service.NewPointsLedger(repository.NewPointsRepository(db), board, service.SystemClock{})
	votes := service.NewVoteService(engine, ledger, limiter, hub)

	var poster service.SocialPoster
	if cfg.SocialWebhookURL != "" {
		poster = social.NewWebhookPoster(cfg.SocialWebhookURL, cfg.SocialToken, &http.Client{Timeout: 30 * time.Second})
	} else {
		log.Println("social: no webhook configured, winners are not posted")
	}

	publisher := service.NewResultPublisher(service.PublisherDeps{
		Records:     records,
		Engine:      engine,
		Poster:      poster,
		Events:      events,
		Broadcaster: hub,
		Locker:      locker,
	})

	scheduler := service.NewDailyScheduler(service.SchedulerConfig{
		Location:         cfg.Timezone,
		Hour:             cfg.VoteHour,
		Minute:           cfg.VoteMinute,
		Entries:          cfg.EntriesPerPoll,
		ImageConcurrency: cfg.ImageConcurrency,
		CheckInterval:    cfg.CheckInterval,
		RetryDelay:       cfg.RetryDelay,
	}, service.SchedulerDeps{
		Records:   records,
		Engine:    engine,
		Publisher: publisher,
		Prompts:   imagegen.NewStaticPrompts(cfg.Prompts, rand.New(rand.NewSource(time.Now().UnixNano()))),
		Images:    imagegen.NewOpenAISupplier(cfg.OpenAIKey, cfg.ImageModel, cfg.ImageSize),
		Events:    events,
		Locker:    locker,
	})

	bot, err := discord.New(discord.Options{
		Token:     cfg.DiscordToken,
		ChannelID: cfg.ChannelID,
		AdminIDs:  cfg.AdminUserIDs,
	}, votes, ledger, scheduler)
	if err != nil {
		log.Fatalf("discord: %v", err)
	}
	publisher.SetPresenter(bot)
	scheduler.SetPresenter(bot)

	if err := bot.Open(ctx); err != nil {
		log.Fatalf("discord: %v", err)
	}
	defer bot.Close()

	scheduler.Start(ctx)
	defer scheduler.Stop()

	api := handlers.NewController(handlers.Deps{
		DB:         db,
		Engine:     engine,
		Records:    records,
		Ledger:     ledger,
		Scheduler:  scheduler,
		Limiter:    cache.NewUserRateLimiter(20, 40),
		AdminToken: cfg.AdminToken,
	})
	srv := routes.StartServer(routes.SetupRouter(api, websocket.NewHandler(hub, engine)), cfg.ServerPort)

	<-ctx.Done()
	log.Println("main: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("main: server forced to shut down: %v", err)
	}
}

// cleanupLimiter forgets throttling state of users idle for an hour.
func cleanupLimiter(ctx context.Context, limiter *cache.UserRateLimiter) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := limiter.Cleanup(now.Add(-time.Hour)); n > 0 {
				log.Printf("cache: dropped %d idle rate limiters", n)
			}
		}
	}
}
