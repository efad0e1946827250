package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/fusionworks/supplier-intake-agent/agent/audit"
	"github.com/fusionworks/supplier-intake-agent/agent/engine"
	"github.com/fusionworks/supplier-intake-agent/agent/extractor"
	"github.com/fusionworks/supplier-intake-agent/agent/fields"
	"github.com/fusionworks/supplier-intake-agent/agent/fusionrules"
	"github.com/fusionworks/supplier-intake-agent/agent/state"
	"github.com/fusionworks/supplier-intake-agent/agent/submitter"
	configx "github.com/fusionworks/supplier-intake-agent/pkg/config"
	fusionx "github.com/fusionworks/supplier-intake-agent/pkg/fusion"
	_ "github.com/fusionworks/supplier-intake-agent/pkg/logger/autoload"
	openrouterx "github.com/fusionworks/supplier-intake-agent/pkg/openrouter"
	"github.com/fusionworks/supplier-intake-agent/server"
)

type AppConfig struct {
	FieldsFile string `envconfig:"FIELDS_FILE" split_words:"true"`
	RedisAddr  string `envconfig:"REDIS_ADDR" split_words:"true"`
	AuditDSN   string `envconfig:"AUDIT_DSN" split_words:"true"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("")

	fieldSet, err := fields.Load(appCfg.FieldsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load field set")
	}

	openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")
	chatClient := openrouterx.NewClient(*openRouterCfg)
	if chatClient == nil {
		log.Fatal().Msg("failed to initialize chat client")
	}
	extract, err := extractor.NewLLM(chatClient, openRouterCfg.Model, fieldSet)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize extractor")
	}

	validate, err := fusionrules.New(fieldSet)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize validator")
	}

	fusionCfg := configx.MustNew[fusionx.Config]("FUSION")
	submit, err := submitter.NewFusion(fusionx.MustNew(*fusionCfg))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize submitter")
	}

	var store state.Store = state.NewMemoryStore()
	if appCfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: appCfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis ping failed")
		}
		store, err = state.NewRedisStore(client)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize redis store")
		}
	}

	engineCfg := configx.MustNew[engine.Config]("ENGINE")
	engineOpts := []engine.Option{}
	if appCfg.AuditDSN != "" {
		db, err := audit.Open(appCfg.AuditDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open audit db")
		}
		recorder, err := audit.NewRecorder(db)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize audit recorder")
		}
		if err := recorder.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure audit schema")
		}
		engineOpts = append(engineOpts, engine.WithAudit(recorder))
	}

	eng, err := engine.New(fieldSet, extract, validate, submit, *engineCfg, engineOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize engine")
	}

	serverCfg := configx.MustNew[server.Config]("AGENT")
	srv, err := server.New(eng, store, *serverCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize server")
	}

	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
