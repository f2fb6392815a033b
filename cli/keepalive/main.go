package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Soypete/twitch-event-bot/keepalive"
	"github.com/Soypete/twitch-event-bot/logging"
)

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// targets builds the watch list from the bot's metrics address and an
// optional llama.cpp server.
func targets(botURL, llmURL string) []keepalive.Target {
	botURL = strings.TrimSuffix(botURL, "/")
	list := []keepalive.Target{{
		Name:          "Twitch Event Bot",
		HealthURL:     botURL + "/healthz",
		AuthHealthURL: botURL + "/healthz/auth",
	}}
	if llmURL != "" {
		// e.g. http://127.0.0.1:8080/v1 -> http://127.0.0.1:8080/health
		llmURL = strings.TrimSuffix(strings.TrimSuffix(llmURL, "/"), "/v1")
		list = append(list, keepalive.Target{
			Name:      "llama.cpp",
			HealthURL: llmURL + "/health",
		})
	}
	return list
}

func main() {
	botURL := getEnv("TWITCH_BOT_URL", "http://localhost:6060")
	logLevel := getEnv("LOG_LEVEL", "info")
	checkInterval := getEnvInt("CHECK_INTERVAL", 60)
	alertInterval := getEnvInt("ALERT_INTERVAL", 3600)

	logger := logging.NewLogger(logging.LogLevel(logLevel), os.Stdout)

	watched := targets(botURL, os.Getenv("LLAMA_CPP_PATH"))
	kas := keepalive.NewService(
		watched,
		time.Duration(checkInterval)*time.Second,
		time.Duration(alertInterval)*time.Second,
		keepalive.NewLogAlerter(logger),
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting keepalive service",
		"checkInterval", checkInterval,
		"alertInterval", alertInterval,
		"targets", len(watched))

	if err := kas.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("keepalive service error", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("keepalive service stopped")
}
