package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Soypete/twitch-event-bot/ai/eventchat"
	"github.com/Soypete/twitch-event-bot/config"
	"github.com/Soypete/twitch-event-bot/database"
	"github.com/Soypete/twitch-event-bot/dispatch"
	"github.com/Soypete/twitch-event-bot/logging"
	"github.com/Soypete/twitch-event-bot/metrics"
	"github.com/Soypete/twitch-event-bot/responder"
	"github.com/Soypete/twitch-event-bot/twitch"
	"github.com/Soypete/twitch-event-bot/twitch/eventsub"
	"github.com/Soypete/twitch-event-bot/twitch/helix"
	"github.com/Soypete/twitch-event-bot/twitch/messagequeue"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

// tokenFunc adapts a function to oauth2.TokenSource.
type tokenFunc func() (*oauth2.Token, error)

func (f tokenFunc) Token() (*oauth2.Token, error) { return f() }

func main() {
	var configPath string
	var model string
	var logLevel string

	flag.StringVar(&configPath, "config", "", "Path to a yaml config file (optional, env and .env are always read)")
	flag.StringVar(&model, "model", "", "The model to use for the LLM, overrides AI_MODEL")
	flag.StringVar(&logLevel, "errorLevel", "", "Log level (debug, info, warn, error), overrides LOG_LEVEL")
	flag.Parse()

	cfg, err := config.Load(configPath, config.WithModel(model), config.WithLogLevel(logLevel))
	if err != nil {
		logging.Default().Error("failed to load config", "error", err.Error())
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.LogLevel(cfg.LogLevel), os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		var authErr *twitch.AuthorizationError
		if errors.As(err, &authErr) {
			logger.Error("bot was not authorized", "reason", authErr.Reason, "error", err.Error())
		} else {
			logger.Error("bot stopped with an error", "error", err.Error())
		}
		os.Exit(1)
	}
	logger.Info("Shutting down")
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	startedAt := time.Now()

	server := metrics.SetupServer(cfg.MetricsAddr)

	// setup llm connection
	llm, err := eventchat.Setup(cfg.AI, logger)
	if err != nil {
		return err
	}

	flow := twitch.NewDeviceFlow(cfg.ClientID, cfg.Scopes, logger)

	// the session is the token source for every twitch client, it fails until
	// the device code is approved
	var session *twitch.Session
	tokens := tokenFunc(func() (*oauth2.Token, error) { return session.Token() })
	api := helix.NewClient(cfg.ClientID, tokens, logger)

	var sender responder.Sender = responder.NewHelixSender(api)
	var ircSender *responder.IRCSender
	if cfg.ChatTransport == config.TransportIRC {
		ircSender = responder.NewIRCSender(tokens, logger)
		sender = ircSender
	}
	resp := responder.New(sender, cfg.MaxReplyLength, logger)

	opts := []dispatch.Option{dispatch.WithModelName(llm.ModelName())}
	var db *database.Postgres
	if cfg.PostgresURL != "" {
		db, err = database.NewPostgres(cfg.PostgresURL, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		opts = append(opts, dispatch.WithStore(db))
	} else {
		logger.Info("POSTGRES_URL not set, events will not be recorded")
	}

	dispatcher, err := dispatch.New(llm, resp, cfg.CommandPrefix, logger, opts...)
	if err != nil {
		return err
	}

	broker := messagequeue.NewBroker(cfg.AI.QueueSize, cfg.AI.Workers, logger)
	broker.Subscribe(dispatcher)

	feed := eventsub.NewClient(api, logger)
	session = twitch.NewSession(flow, feed, broker.Handle, logger)
	session.OnConnected(func(ctx context.Context) error {
		return api.ResolveIdentity(ctx, cfg.Channel)
	})
	if ircSender != nil {
		session.OnConnected(func(ctx context.Context) error {
			return ircSender.Connect(ctx, api.BotLogin(), api.ChannelLogin())
		})
	}

	server.RegisterAuthHealthHandler(session.AuthHealthHandler())
	logger.Debug("auth health endpoint registered at /healthz/auth")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg := &sync.WaitGroup{}
	broker.Start(ctx, wg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		// the bot is done when the session is, the metrics server goes with it
		defer cancel()
		return session.Run(gctx)
	})

	logger.Info("Press Ctrl+C to exit")
	err = g.Wait()
	wg.Wait()

	if db != nil {
		logEventSummary(db, startedAt, logger)
	}
	return err
}

func logEventSummary(db *database.Postgres, since time.Time, logger *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	counts, err := db.CountEventsByKind(ctx, since)
	if err != nil {
		logger.Warn("failed to summarize recorded events", "error", err.Error())
		return
	}
	args := make([]any, 0, len(counts)*2)
	for kind, total := range counts {
		args = append(args, kind, total)
	}
	logger.Info("events recorded this session", args...)
}
