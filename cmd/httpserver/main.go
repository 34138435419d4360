package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	cron "github.com/robfig/cron/v3"
	"github.com/ruteri/casper-member-portal/accounts"
	"github.com/ruteri/casper-member-portal/cmd/flags"
	"github.com/ruteri/casper-member-portal/common"
	"github.com/ruteri/casper-member-portal/events"
	"github.com/ruteri/casper-member-portal/httpserver"
	"github.com/ruteri/casper-member-portal/interfaces"
	"github.com/ruteri/casper-member-portal/mailer"
	"github.com/ruteri/casper-member-portal/metrics"
	"github.com/ruteri/casper-member-portal/storage"
	"github.com/ruteri/casper-member-portal/store"
	"github.com/ruteri/casper-member-portal/verification"
	"github.com/urfave/cli/v2"
)

var flagList []cli.Flag = append([]cli.Flag{
	&cli.StringFlag{
		Name:    "listen-addr",
		Value:   "127.0.0.1:8080",
		Usage:   "address to listen on for API",
		EnvVars: []string{"LISTEN_ADDR"},
	},
	flags.LogServiceFlagFn("casper-member-portal"),
	flags.CORSOriginsFlag,
	flags.DebugErrorsFlag,
	&cli.StringSliceFlag{
		Name:    "storage",
		Value:   cli.NewStringSlice("file://./data"),
		Usage:   "blob storage URI (file://, s3://, ipfs://, vault://), may be repeated",
		EnvVars: []string{"STORAGE_URIS"},
	},
	&cli.StringFlag{
		Name:    "database-url",
		Usage:   "PostgreSQL connection URL, in-memory store if empty",
		EnvVars: []string{"DATABASE_URL"},
	},
	&cli.StringFlag{
		Name:    "redis-url",
		Usage:   "Redis URL for cross-instance account locks and token revocation",
		EnvVars: []string{"REDIS_URL"},
	},
	&cli.StringSliceFlag{
		Name:    "kafka-brokers",
		Usage:   "Kafka seed brokers for node verification events, events are logged if empty",
		EnvVars: []string{"KAFKA_BROKERS"},
	},
	&cli.StringFlag{
		Name:  "kafka-topic",
		Value: events.DefaultTopic,
		Usage: "Kafka topic for node verification events",
	},
	&cli.StringFlag{
		Name:    "jwt-secret",
		Usage:   "HS256 secret of member bearer tokens",
		EnvVars: []string{"JWT_SECRET"},
	},
	&cli.DurationFlag{
		Name:  "token-ttl",
		Value: 24 * time.Hour,
		Usage: "lifetime of member bearer tokens, bounds how long revocations are kept",
	},
	&cli.StringFlag{
		Name:    "sendgrid-api-key",
		Usage:   "SendGrid API key, email is logged if empty",
		EnvVars: []string{"SENDGRID_API_KEY"},
	},
	&cli.StringFlag{
		Name:    "mail-from",
		Value:   "no-reply@casper.network",
		Usage:   "sender address of transactional email",
		EnvVars: []string{"MAIL_FROM"},
	},
	&cli.StringFlag{
		Name:  "mail-from-name",
		Value: "Casper Association",
		Usage: "sender name of transactional email",
	},
	&cli.StringFlag{
		Name:    "portal-origin",
		Value:   "http://localhost:3000",
		Usage:   "portal web origin used in invitation links when requests carry no Origin",
		EnvVars: []string{"PORTAL_ORIGIN"},
	},
	&cli.BoolFlag{
		Name:  "challenge-nonce",
		Value: false,
		Usage: "append a random nonce to every issued challenge message",
	},
	&cli.BoolFlag{
		Name:  "allow-bypass",
		Value: false,
		Usage: "enable the verify-bypass endpoint (never in production)",
	},
	&cli.DurationFlag{
		Name:  "code-ttl",
		Value: accounts.DefaultCodeTTL,
		Usage: "lifetime of emailed verification codes",
	},
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "portal-server",
		Usage: "Serve the Casper member portal API",
		Flags: flagList,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)
			ctx := cCtx.Context

			secret := cCtx.String("jwt-secret")
			if len(secret) < 32 {
				logger.Error("jwt-secret must be at least 32 characters")
				return errors.New("jwt-secret must be at least 32 characters")
			}

			m := metrics.New(common.PackageName)

			// Blob storage
			locations := make([]interfaces.StorageBackendLocation, 0)
			for _, uri := range cCtx.StringSlice("storage") {
				loc, err := interfaces.NewStorageBackendLocation(uri)
				if err != nil {
					logger.Error("Invalid storage URI", "uri", uri, "err", err)
					return err
				}
				locations = append(locations, loc)
			}
			blobs, err := storage.NewStorageBackendFactory(logger).CreateMultiBackend(locations)
			if err != nil {
				logger.Error("Failed to create storage backends", "err", err)
				return err
			}

			// Accounts
			var accountStore interfaces.AccountStore
			var tx interfaces.AccountTx
			if databaseURL := cCtx.String("database-url"); databaseURL != "" {
				pg, err := store.NewPostgresStore(ctx, databaseURL)
				if err != nil {
					logger.Error("Failed to connect to database", "err", err)
					return err
				}
				defer pg.Close()
				if err := pg.Migrate(ctx); err != nil {
					logger.Error("Failed to migrate database", "err", err)
					return err
				}
				accountStore, tx = pg, pg
			} else {
				logger.Warn("No database configured, accounts are kept in memory")
				mem := store.NewMemoryStore()
				accountStore, tx = mem, mem
			}

			tokenTTL := cCtx.Duration("token-ttl")
			var revocations interfaces.TokenRevocationList = store.NewMemoryRevocationList(tokenTTL)
			if redisURL := cCtx.String("redis-url"); redisURL != "" {
				client, err := store.NewRedisClient(ctx, redisURL)
				if err != nil {
					logger.Error("Failed to connect to Redis", "err", err)
					return err
				}
				defer client.Close()
				tx = store.NewLockedTx(store.NewRedisLocker(client, logger), tx)
				revocations = store.NewRedisRevocationList(client, tokenTTL)
			}

			// Outbound collaborators
			var publisher interfaces.EventPublisher = events.NewLogPublisher(logger)
			if brokers := cCtx.StringSlice("kafka-brokers"); len(brokers) > 0 {
				kp, err := events.NewKafkaPublisher(brokers, logger, events.WithTopic(cCtx.String("kafka-topic")))
				if err != nil {
					logger.Error("Failed to create Kafka publisher", "err", err)
					return err
				}
				defer kp.Close()
				if err := kp.Ping(ctx); err != nil {
					logger.Warn("Kafka brokers unreachable, events may be dropped", "err", err)
				}
				publisher = kp
			}

			var mail interfaces.Mailer = mailer.NewLogMailer(logger)
			if apiKey := cCtx.String("sendgrid-api-key"); apiKey != "" {
				sg, err := mailer.NewSendGridMailer(mailer.Config{
					APIKey:    apiKey,
					FromName:  cCtx.String("mail-from-name"),
					FromEmail: cCtx.String("mail-from"),
				}, logger)
				if err != nil {
					logger.Error("Failed to create mailer", "err", err)
					return err
				}
				mail = sg
			}

			// Services
			verificationSvc := verification.NewService(
				tx,
				verification.NewMessageIssuer(verification.WithNonce(cCtx.Bool("challenge-nonce"))),
				verification.NewCasperVerifier(logger),
				verification.NewBindingCommitter(blobs, time.Now, logger),
				publisher,
				m,
				logger,
			)

			allowBypass := cCtx.Bool("allow-bypass")
			if allowBypass {
				logger.Warn("Verification bypass is enabled")
			}
			accountSvc := accounts.NewService(accounts.Config{
				AllowBypass:   allowBypass,
				DefaultOrigin: cCtx.String("portal-origin"),
			}, accounts.Dependencies{
				Tx:       tx,
				Store:    accountStore,
				Blobs:    blobs,
				Mailer:   mail,
				ESign:    accounts.NewLogESignProvider(cCtx.String("portal-origin"), logger),
				AML:      accounts.NewLogAMLChecker(logger),
				Sessions: revocations,
			}, logger)

			scheduler := cron.New()
			cleaner := accounts.NewCodeCleaner(accountStore, cCtx.Duration("code-ttl"), time.Now, m, logger)
			if err := cleaner.Schedule(scheduler, "@every 1h"); err != nil {
				logger.Error("Failed to schedule cleanup", "err", err)
				return err
			}
			scheduler.Start()
			defer scheduler.Stop()

			// HTTP
			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String("listen-addr"))
			handler := httpserver.NewHandler(verificationSvc, accountSvc, cfg.DebugErrors, logger)
			auth := httpserver.NewJWTAccountResolver([]byte(secret), revocations, logger)

			server, err := httpserver.New(cfg, handler, auth, m)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server",
				slog.Int("storage_backends", len(locations)),
				slog.Bool("challenge_nonce", cCtx.Bool("challenge-nonce")))
			server.RunInBackground()

			// Wait for termination signal
			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
