// Command chatctl is an interactive terminal client for the chat backend.
//
// Usage:
//
//	CHAT_TOKEN=... chatctl -config chatctl.yaml
//
// Lines typed at the prompt are commands: /dm <user> <text>,
// /group <id> <text>, /history <direct:user|group:id>, /partners, /groups
// and /quit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	chat "github.com/NeboLoop/chat-go-sdk"
	"github.com/NeboLoop/chat-go-sdk/conversation"
	"github.com/NeboLoop/chat-go-sdk/internal/config"
	"github.com/NeboLoop/chat-go-sdk/internal/logger"
	"github.com/NeboLoop/chat-go-sdk/store"
)

func main() {
	configPath := flag.String("config", "chatctl.yaml", "path to YAML config (optional)")
	token := flag.String("token", "", "auth token (overrides CHAT_TOKEN)")
	flag.Parse()

	if err := run(*configPath, *token); err != nil {
		fmt.Fprintf(os.Stderr, "chatctl: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, token string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if token != "" {
		cfg.Auth.Token = token
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, closeCache, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer closeCache()

	client := chat.New(chat.Config{
		Endpoint:          cfg.Server.Endpoint,
		APIEndpoint:       cfg.Server.APIEndpoint,
		RequestTimeout:    cfg.Server.RequestTimeout,
		HeartbeatInterval: cfg.Server.HeartbeatInterval,
		Backoff:           chat.Backoff{MaxAttempts: cfg.Server.MaxAttempts},
		Logger:            log,
	})
	defer client.Close()

	sh := newShell(os.Stdin, os.Stdout, client, cache, log)
	detach := sh.watch(client.Events())
	defer detach()

	userID, err := client.Connect(ctx, cfg.Auth.Token)
	if err != nil {
		var authErr *chat.AuthError
		if errors.As(err, &authErr) {
			return fmt.Errorf("authentication failed: %s", authErr.Message)
		}
		return err
	}
	fmt.Fprintf(sh.out, "connected as %s\n", userID)

	if api, err := client.API(cfg.Auth.Token); err == nil {
		sh.api = api
	} else {
		log.Warn("rest api unavailable", "error", err)
	}

	err = sh.loop(ctx)
	client.Disconnect()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openCache(ctx context.Context, cfg config.CacheConfig) (conversation.Store, func() error, error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := store.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "redis":
		s, err := store.OpenRedis(ctx, store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		slog.Debug("using in-memory conversation cache")
		return conversation.NewMemoryStore(), func() error { return nil }, nil
	}
}
