// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package app wires configuration into the running components shared by
// the server and the command-line tools.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/AyushRauniyar/RFP-Management-System/internal/ai"
	"github.com/AyushRauniyar/RFP-Management-System/internal/config"
	"github.com/AyushRauniyar/RFP-Management-System/internal/extract"
	"github.com/AyushRauniyar/RFP-Management-System/internal/ingest"
	"github.com/AyushRauniyar/RFP-Management-System/internal/lease"
	"github.com/AyushRauniyar/RFP-Management-System/internal/mailbox"
	"github.com/AyushRauniyar/RFP-Management-System/internal/matcher"
	"github.com/AyushRauniyar/RFP-Management-System/internal/queue"
	"github.com/AyushRauniyar/RFP-Management-System/internal/quote"
	"github.com/AyushRauniyar/RFP-Management-System/internal/review"
	"github.com/AyushRauniyar/RFP-Management-System/internal/store"
)

// pollLeaseName scopes the poll lease to the monitored mailbox.
const pollLeaseName = "poll"

// App holds the wired components. Redis and Publisher are nil when no
// Redis URL is configured.
type App struct {
	Config       *config.Config
	Store        store.Store
	Redis        *redis.Client
	Publisher    *queue.Publisher
	AI           *ai.Client
	Mailbox      *mailbox.Client
	Orchestrator *ingest.Orchestrator
	Review       *review.Service

	closers []func()
}

// Options adjusts how the app is built.
type Options struct {
	// Peek leaves fetched messages unseen.
	Peek bool
}

// New connects every dependency named in cfg. On error, anything already
// opened is closed.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Store, err = a.openStore(ctx); err != nil {
		return nil, err
	}
	if cfg.SeedPath != "" {
		if err := store.LoadSeed(ctx, a.Store, cfg.SeedPath); err != nil {
			return nil, fmt.Errorf("load seed: %w", err)
		}
		slog.Info("seed loaded", "path", cfg.SeedPath)
	}

	if a.Redis, err = ConnectRedis(ctx, cfg.RedisURL); err != nil {
		return nil, err
	}
	if a.Redis != nil {
		rdb := a.Redis
		a.closers = append(a.closers, func() { rdb.Close() })
		a.Publisher = queue.NewPublisher(rdb, cfg.ReviewQueue)
	}

	a.AI, err = ai.New(ctx, ai.Config{
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("create ai client: %w", err)
	}
	aiClient := a.AI
	a.closers = append(a.closers, func() { aiClient.Close() })

	a.Mailbox = mailbox.New(MailboxConfig(ctx, cfg.Mailbox, opts.Peek))

	icfg := ingest.Config{
		Mailbox:   a.Mailbox,
		Store:     a.Store,
		Matcher:   matcher.New(a.Store),
		Extractor: extract.New(a.AI),
		Parser:    quote.NewExtractor(a.AI),
	}
	// Optional dependencies stay nil interfaces when Redis is absent.
	if a.Redis != nil {
		icfg.Notifier = a.Publisher
		icfg.Lease = lease.New(a.Redis, pollLeaseName, lease.DefaultTTL)
	}
	a.Orchestrator = ingest.New(icfg)
	a.Review = review.NewService(a.Store, ai.NewEvaluator(a.AI))

	return a, nil
}

func (a *App) openStore(ctx context.Context) (store.Store, error) {
	if a.Config.DatabaseURL == "" {
		slog.Warn("no database configured, using in-memory store")
		return store.NewMemory(), nil
	}

	pool, err := pgxpool.New(ctx, a.Config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	slog.Info("connected to PostgreSQL")

	s, err := store.NewPostgres(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("initialise postgres store: %w", err)
	}
	return s, nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// ConnectRedis parses url and pings the server. An empty url returns a
// nil client.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		slog.Info("no redis configured, poll lease and review notifications disabled")
		return nil, nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	slog.Info("connected to Redis")
	return rdb, nil
}

// MailboxConfig converts the loaded mailbox section into a client config.
func MailboxConfig(ctx context.Context, m config.MailboxConfig, peek bool) mailbox.Config {
	mc := mailbox.Config{
		Host:               m.Host,
		Port:               m.Port,
		Username:           m.Username,
		Password:           m.Password,
		Folder:             m.Folder,
		TLS:                m.UseTLS(),
		InsecureSkipVerify: m.InsecureSkipVerify,
		MaxMessages:        m.MaxMessages,
		Timeout:            m.Timeout,
		DNSServers:         m.DNSServers,
		Peek:               peek,
	}
	oauth := mailbox.OAuthConfig{
		ClientID:     m.OAuth.ClientID,
		ClientSecret: m.OAuth.ClientSecret,
		RefreshToken: m.OAuth.RefreshToken,
		TokenURL:     m.OAuth.TokenURL,
	}
	if oauth.Enabled() {
		mc.TokenSource = oauth.TokenSource(ctx)
	}
	return mc
}

// SetupLogging installs a JSON slog handler at level as the default.
func SetupLogging(level slog.Level) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
