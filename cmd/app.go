package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Himanshuwagh/OutPilot/internal/classifier"
	"github.com/Himanshuwagh/OutPilot/internal/dedup"
	"github.com/Himanshuwagh/OutPilot/internal/draft"
	"github.com/Himanshuwagh/OutPilot/internal/draft/gemini"
	"github.com/Himanshuwagh/OutPilot/internal/httpclient"
	"github.com/Himanshuwagh/OutPilot/internal/metrics"
	"github.com/Himanshuwagh/OutPilot/internal/normalizer"
	"github.com/Himanshuwagh/OutPilot/internal/pipeline"
	"github.com/Himanshuwagh/OutPilot/internal/resolver"
	"github.com/Himanshuwagh/OutPilot/internal/secrets"
	"github.com/Himanshuwagh/OutPilot/internal/sender"
	"github.com/Himanshuwagh/OutPilot/internal/source"
	"github.com/Himanshuwagh/OutPilot/internal/store"
)

// application holds everything a command needs for one or more runs.
type application struct {
	config   *Config
	store    *store.Store
	metrics  *metrics.Metrics
	pipeline *pipeline.Pipeline
	closers  []func() error
	logger   *zap.Logger
}

// newApplication wires the collaborators described by the config.
func newApplication(ctx context.Context, config *Config, logger *zap.Logger) (*application, error) {
	st, err := store.Open(config.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a := &application{
		config:  config,
		store:   st,
		metrics: metrics.New(),
		closers: []func() error{st.Close},
		logger:  logger,
	}

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *application) build(ctx context.Context) error {
	config, logger := a.config, a.logger
	client := httpclient.New(config.HTTP.Timeout, config.HTTP.UserAgent, logger.Named("http"))

	fetcher, err := a.fetcher(client)
	if err != nil {
		return err
	}

	rules, err := classifier.New(config.Classifier.Config)
	if err != nil {
		return fmt.Errorf("building classifier: %w", err)
	}
	rules.Log(logger.Named("classifier"))

	engine, err := a.dedup(ctx)
	if err != nil {
		return err
	}

	res, err := a.resolver(client)
	if err != nil {
		return err
	}

	drafter, err := a.drafter(ctx)
	if err != nil {
		return err
	}

	smtpSender, err := a.sender()
	if err != nil {
		return err
	}

	a.pipeline = pipeline.New(config.Run, pipeline.Deps{
		Store:      a.store,
		Fetcher:    fetcher,
		Normalizer: normalizer.New(0),
		Classifier: rules,
		Dedup:      engine,
		Resolver:   res,
		Drafter:    drafter,
		Sender:     smtpSender,
		Profile:    config.Draft.Profile,
		Roles:      config.Classifier.Roles,
		Metrics:    a.metrics,
	}, logger.Named("pipeline"))

	return nil
}

func (a *application) fetcher(client *httpclient.Client) (*source.Fetcher, error) {
	var sources []source.Source
	for _, cfg := range a.config.Sources {
		token, err := secrets.Optional(secrets.Source{
			Name:  "token of source " + cfg.Name,
			Value: cfg.Token,
			Env:   envName("SOURCE", cfg.Name, "TOKEN"),
		})
		if err != nil {
			return nil, err
		}
		cfg.Token = token

		src, err := source.New(cfg, client, a.logger.Named("source"))
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		a.logger.Warn("no sources configured, only pending work will be processed")
	}

	return &source.Fetcher{
		Sources:      sources,
		Concurrency:  a.config.Run.SourceConcurrency,
		MaxPerSource: a.config.Run.MaxPostsPerSource,
		Cursors:      a.store,
		Logger:       a.logger.Named("fetch"),
	}, nil
}

func (a *application) dedup(ctx context.Context) (*dedup.Engine, error) {
	cfg := a.config.Dedup
	logger := a.logger.Named("dedup").With(zap.String("backend", cfg.Backend))

	var backend dedup.Store
	switch cfg.Backend {
	case DedupMemory:
		backend = dedup.NewMemoryStore()
	case DedupRedis:
		password, err := secrets.Optional(secrets.Source{
			Name:  "redis password",
			File:  cfg.Redis.PasswordFile,
			Value: cfg.Redis.Password,
		})
		if err != nil {
			return nil, err
		}
		client := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)

		rs := dedup.NewRedisStore(client, cfg.Redis.Prefix)
		if err := rs.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connecting to redis %s: %w", cfg.Redis.Addr, err)
		}
		backend = rs
	default:
		backend = a.store
	}

	return dedup.New(backend, cfg.Cooldown, cfg.Shards, logger), nil
}

func (a *application) resolver(client *httpclient.Client) (*resolver.Resolver, error) {
	cfg := a.config.Resolver

	apiKey, err := secrets.Optional(secrets.Source{
		Name:  "people search api key",
		Value: cfg.PeopleSearch.APIKey,
		Env:   "PEOPLE_SEARCH_API_KEY",
	})
	if err != nil {
		return nil, err
	}
	cfg.PeopleSearch.APIKey = apiKey

	token, err := secrets.Optional(secrets.Source{
		Name:  "code host token",
		Value: cfg.CodeHost.Token,
		Env:   "GITHUB_TOKEN",
	})
	if err != nil {
		return nil, err
	}
	cfg.CodeHost.Token = token

	return resolver.New(cfg, resolver.Deps{
		HTTP:    client,
		Cache:   a.store,
		Observe: a.metrics.ExternalCall,
	}, a.logger.Named("resolver")), nil
}

func (a *application) drafter(ctx context.Context) (draft.Drafter, error) {
	cfg := a.config.Draft

	templates, err := draft.LoadTemplates(cfg.Templates)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	if cfg.Provider != DraftGemini {
		return draft.TemplateDrafter{Templates: templates}, nil
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  cfg.Gemini.APIKeyFile,
		Value: cfg.Gemini.APIKey,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set draft.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	genLogger := a.logger.Named("gemini").With(
		zap.String("model", cfg.Gemini.Model),
		zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries),
	)

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	return gemini.NewDrafter(generator, templates, genLogger, cfg.Gemini.MaxLogLength), nil
}

func (a *application) sender() (sender.Sender, error) {
	cfg := a.config.Send.SMTP

	password, err := secrets.Optional(secrets.Source{
		Name:  "smtp password",
		File:  a.config.Send.PasswordFile,
		Value: cfg.Password,
		Env:   "SMTP_PASSWORD",
	})
	if err != nil {
		return nil, err
	}
	cfg.Password = password

	if a.config.Run.DryRun && cfg.Host == "" {
		return dryRunSender{}, nil
	}

	return sender.NewSMTP(cfg, a.logger.Named("smtp"))
}

// Close releases the store and any backend connections.
func (a *application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// dryRunSender stands in for the transport when no SMTP host is configured.
// Dry runs never reach it.
type dryRunSender struct{}

func (dryRunSender) Send(context.Context, string, string, string) (string, error) {
	return "", errors.New("sending is disabled in dry-run mode")
}

// envName builds an environment variable name like SOURCE_FEED_TOKEN.
func envName(parts ...string) string {
	name := strings.ToUpper(strings.Join(parts, "_"))
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, name)
}
