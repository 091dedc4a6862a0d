package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/camprush/camprush/internal/assist"
	"github.com/camprush/camprush/internal/barriers"
	"github.com/camprush/camprush/internal/bot"
	"github.com/camprush/camprush/internal/browser"
	"github.com/camprush/camprush/internal/clients/openai"
	"github.com/camprush/camprush/internal/clients/sendgrid"
	"github.com/camprush/camprush/internal/clients/twilio"
	"github.com/camprush/camprush/internal/config"
	"github.com/camprush/camprush/internal/db"
	"github.com/camprush/camprush/internal/detect"
	"github.com/camprush/camprush/internal/handlers"
	"github.com/camprush/camprush/internal/logger"
	"github.com/camprush/camprush/internal/monitor"
	"github.com/camprush/camprush/internal/notify"
	svc "github.com/camprush/camprush/internal/services"
	"github.com/camprush/camprush/internal/store"
	"github.com/camprush/camprush/internal/web"
)

func main() {
	// a missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := config.ValidateForRun(cfg); err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()

	if err := db.Init(cfg.DB); err != nil {
		lg.Fatal("db init", "error", err)
	}
	st := store.New(db.Conn())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Engagement tracking
	var tracker notify.Tracker = notify.NewMemoryTracker()
	if cfg.Redis.Enabled() {
		rc := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rc.Ping(ctx).Err(); err != nil {
			lg.Fatal("redis ping", "addr", cfg.Redis.Addr, "error", err)
		}
		defer rc.Close()
		tracker = notify.NewRedisTracker(rc)
	}

	// Page fetching and rendering
	var renderer *browser.Renderer
	if cfg.Monitor.Render || cfg.Barriers.AIEnabled {
		renderer = browser.New(lg, browser.Options{UserAgent: cfg.Monitor.UserAgent, Timeout: cfg.Monitor.FetchTimeout * 2})
		defer renderer.Close()
	}
	var fetcher detect.Fetcher = detect.NewHTTPFetcher(cfg.Monitor.UserAgent, cfg.Monitor.FetchTimeout, cfg.Monitor.FetchRatePerSec)
	if cfg.Monitor.Render {
		fetcher = renderer
	}

	// Barrier analysis
	classifier, err := barriers.LoadClassifier(cfg.Barriers.ProfilesPath)
	if err != nil {
		lg.Fatal("provider table", "path", cfg.Barriers.ProfilesPath, "error", err)
	}
	var analyzer barriers.Analyzer
	if cfg.Barriers.AIEnabled {
		llm, err := openai.New(lg, openai.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			Timeout: cfg.OpenAI.Timeout,
		})
		if err != nil {
			lg.Fatal("openai client", "error", err)
		}
		analyzer = barriers.NewVisionAnalyzer(renderer, llm)
	}
	planner := barriers.NewPlanner(lg, classifier, analyzer)
	analysis := svc.NewAnalysisService(lg, st, planner, cfg.Barriers.CacheTTL)

	// Notification channels
	senders := map[notify.Channel]notify.Sender{}
	if cfg.SendGrid.APIKey != "" {
		sg, err := sendgrid.New(lg, sendgrid.Config{
			APIKey:           cfg.SendGrid.APIKey,
			BaseURL:          cfg.SendGrid.BaseURL,
			DefaultFromEmail: cfg.SendGrid.FromEmail,
			DefaultFromName:  cfg.SendGrid.FromName,
		})
		if err != nil {
			lg.Fatal("sendgrid client", "error", err)
		}
		senders[notify.ChannelEmail] = notify.NewEmailSender(sg)
	}
	if cfg.Twilio.AccountSID != "" {
		tw, err := twilio.New(lg, twilio.Config{
			AccountSID:  cfg.Twilio.AccountSID,
			AuthToken:   cfg.Twilio.AuthToken,
			BaseURL:     cfg.Twilio.BaseURL,
			DefaultFrom: cfg.Twilio.From,
		})
		if err != nil {
			lg.Fatal("twilio client", "error", err)
		}
		senders[notify.ChannelSMS] = notify.NewSMSSender(tw)
	}
	tg := bot.NewClient(lg, cfg.Telegram.BotToken)
	if tg.Enabled() {
		senders[notify.ChannelTelegram] = bot.NewSender(tg, st)
	}
	if len(senders) == 0 {
		lg.Warn("no notification channel configured; parents will not be alerted")
	}

	var engine *notify.Engine
	engine = notify.NewEngine(lg, tracker, senders,
		notify.WithDirectory(st),
		notify.WithRecorder(st),
		notify.WithEscalationHandler(func(ctx context.Context, msg notify.Message, rec notify.Record) {
			err := st.Audit(ctx, store.AuditEvent{
				Event:  store.AuditEscalation,
				UserID: msg.UserID,
				Detail: map[string]any{
					"message_id": msg.ID,
					"template":   msg.TemplateID,
					"urgency":    msg.Urgency,
					"channel":    rec.Channel,
					"state":      rec.State(),
				},
			})
			if err != nil {
				lg.Warn("audit write failed", "event", store.AuditEscalation, "error", err)
			}
			engine.EscalateToAlternate(ctx, msg, rec)
		}),
	)
	defer engine.Close()
	bot.Subscribe(lg, engine, cfg.Notify.DefaultEscalationDelay)

	// Monitor
	runner := monitor.NewRunner(lg, st, fetcher)
	if cfg.Monitor.Enabled {
		runner.StartLoop(ctx, cfg.Monitor.Tick)
	}

	deps := handlers.Deps{
		Log:           lg,
		Store:         st,
		Monitor:       runner,
		Analysis:      analysis,
		Notifier:      engine,
		Desk:          assist.NewDesk(lg, st, assist.NewQueue(), cfg.Assist.TokenTTL, cfg.PublicBaseURL),
		WebhookSecret: cfg.Telegram.WebhookSecret,
		CountryCode:   cfg.DefaultCountryCode,
	}
	if tg.Enabled() {
		deps.Telegram = bot.NewDispatcher(lg, tg, st, engine, cfg.DefaultCountryCode)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           web.Router(handlers.New(deps)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	lg.Info("CampRush listening", "addr", cfg.Addr, "monitor", cfg.Monitor.Enabled, "render", cfg.Monitor.Render, "redis", cfg.Redis.Enabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Fatal("http server", "error", err)
	}
}
