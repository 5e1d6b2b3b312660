package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/storebot/internal/bot"
	"github.com/hpungsan/storebot/internal/config"
	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/draft"
	"github.com/hpungsan/storebot/internal/events"
	"github.com/hpungsan/storebot/internal/intake"
	"github.com/hpungsan/storebot/internal/publish"
	"github.com/hpungsan/storebot/internal/schedule"
	"github.com/hpungsan/storebot/internal/telegram"
	"github.com/hpungsan/storebot/internal/watermark"
	"github.com/hpungsan/storebot/internal/web"
)

// maxInFlightUpdates bounds concurrently handled updates.
const maxInFlightUpdates = 16

func newClient(cfg *config.Config) *telegram.Client {
	var opts []telegram.Option
	if cfg.BotAPIURL != "" {
		opts = append(opts, telegram.WithBaseURL(cfg.BotAPIURL))
	}
	return telegram.NewClient(cfg.BotToken, opts...)
}

// botIdentity checks the token with getMe and fills cfg.BotUsername from the
// bot account when it is not configured.
func botIdentity(ctx context.Context, client *telegram.Client, cfg *config.Config) (*telegram.User, error) {
	me, err := client.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("check bot token: %w", err)
	}
	if cfg.BotUsername == "" {
		if me.Username == "" {
			return nil, fmt.Errorf("bot_username (BOT_USERNAME) is not set and the bot account has no username")
		}
		cfg.BotUsername = me.Username
	}
	return me, nil
}

// openDrafts returns the configured draft backend and its cleanup.
func openDrafts(cfg *config.Config, database *sql.DB) (draft.Store, func(), error) {
	switch cfg.DraftBackend {
	case "memory":
		return draft.NewMemoryStore(), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		return draft.NewRedisStore(client, cfg.DraftTTL()), func() { client.Close() }, nil
	default:
		return draft.NewSQLiteStore(database), func() {}, nil
	}
}

// openEvents returns a Kafka publisher when brokers are configured, else Nop.
func openEvents(cfg *config.Config, log *slog.Logger) (events.Publisher, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		return events.Nop{}, func() {}
	}
	k := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	log.Info("publishing events", "brokers", strings.Join(cfg.KafkaBrokers, ","), "topic", cfg.KafkaTopic)
	return k, func() {
		if err := k.Close(); err != nil {
			log.Warn("close event publisher", "err", err)
		}
	}
}

// runServe wires every component and runs until SIGINT or SIGTERM.
func runServe(parent context.Context, rt *runtime) error {
	cfg, log := rt.cfg, rt.log
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.MediaDir, 0o755); err != nil {
		return fmt.Errorf("media dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newClient(cfg)
	me, err := botIdentity(ctx, client, cfg)
	if err != nil {
		return err
	}
	log.Info("bot authenticated", "username", me.Username, "watermark_handle", cfg.BotUsername)

	drafts, closeDrafts, err := openDrafts(cfg, rt.db)
	if err != nil {
		return err
	}
	defer closeDrafts()

	pub, closeEvents := openEvents(cfg, log)
	defer closeEvents()

	store := db.NewStore(rt.db)
	publisher := publish.New(client, store, pub, publish.Options{
		BotUsername:     cfg.BotUsername,
		DispatchTimeout: cfg.DispatchTimeout(),
	}, log)

	stamper := watermark.New(cfg.WatermarkMinFontPx, cfg.WatermarkOpacity, log)
	engine := intake.New(intake.Options{
		MaxPhotos:       cfg.MaxPhotos,
		MaxFreeProducts: cfg.MaxFreeProducts,
		BotUsername:     cfg.BotUsername,
		DraftTTL:        cfg.DraftTTL(),
		AlbumWindow:     cfg.AlbumWindow(),
	}, intake.Deps{
		Drafts:   drafts,
		Storage:  store,
		Stamper:  stamper,
		Prompter: bot.NewPrompter(client),
		Events:   pub,
		Logger:   log,
	})
	defer engine.Close()

	b := bot.New(bot.Deps{
		API:       client,
		Engine:    engine,
		DB:        rt.db,
		Publisher: publisher,
		Events:    pub,
		Stamper:   stamper,
		Config:    cfg,
		Logger:    log,
	})
	dispatch := bot.NewDispatcher(b, maxInFlightUpdates)
	scheduler := schedule.New(store, publisher, cfg.SweepInterval(), log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(ctx) })

	var onUpdate web.UpdateFunc
	if cfg.WebhookURL == "" {
		if err := client.DeleteWebhook(ctx); err != nil {
			log.Warn("delete webhook", "err", err)
		}
		g.Go(func() error { return bot.NewPoller(client, dispatch, log).Run(ctx) })
	} else {
		hook := strings.TrimSuffix(cfg.WebhookURL, "/") + "/webhook/" + cfg.WebhookSecret
		if err := client.SetWebhook(ctx, hook, cfg.WebhookSecret); err != nil {
			return fmt.Errorf("set webhook: %w", err)
		}
		log.Info("webhook registered", "url", cfg.WebhookURL)
		onUpdate = func(u telegram.Update) { dispatch.Submit(ctx, u) }
		g.Go(func() error {
			<-ctx.Done()
			dispatch.Wait()
			return nil
		})
	}

	srv := web.NewServer(rt.db, cfg, onUpdate, web.Options{
		Addr:    cfg.WebhookAddr,
		Secret:  cfg.WebhookSecret,
		Version: Version,
	}, log)
	g.Go(func() error { return web.Run(ctx, srv, log) })

	return g.Wait()
}

// runSweep posts due schedules once and purges drafts idle past the TTL.
func runSweep(ctx context.Context, rt *runtime, now time.Time) (schedule.SweepResult, int64, error) {
	if err := rt.cfg.ValidateForServe(); err != nil {
		return schedule.SweepResult{}, 0, err
	}
	pub, closeEvents := openEvents(rt.cfg, rt.log)
	defer closeEvents()

	client := newClient(rt.cfg)
	if rt.cfg.BotUsername == "" {
		if _, err := botIdentity(ctx, client, rt.cfg); err != nil {
			return schedule.SweepResult{}, 0, err
		}
	}

	store := db.NewStore(rt.db)
	publisher := publish.New(client, store, pub, publish.Options{
		BotUsername:     rt.cfg.BotUsername,
		DispatchTimeout: rt.cfg.DispatchTimeout(),
	}, rt.log)

	res, err := schedule.New(store, publisher, rt.cfg.SweepInterval(), rt.log).Sweep(ctx, now)
	if err != nil {
		return res, 0, err
	}

	var purged int64
	if ttl := rt.cfg.DraftTTL(); ttl > 0 {
		purged, err = db.PurgeDrafts(ctx, rt.db, now.Add(-ttl))
		if err != nil {
			return res, 0, err
		}
	}
	return res, purged, nil
}
