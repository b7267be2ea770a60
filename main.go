package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/deemkeen/mangafedi/activitypub"
	"github.com/deemkeen/mangafedi/db"
	"github.com/deemkeen/mangafedi/identity"
	"github.com/deemkeen/mangafedi/util"
	"github.com/deemkeen/mangafedi/web"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := pflag.String("config", "", "path to config.yaml (default: ./config.yaml, then the user config dir)")
	migrateOnly := pflag.Bool("migrate-only", false, "run database migrations and exit")
	showVersion := pflag.Bool("version", false, "print the version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(util.GetNameAndVersion())
		return
	}

	var conf *util.AppConfig
	var err error
	if *configPath != "" {
		conf, err = util.ReadConfFrom(*configPath)
	} else {
		conf, err = util.ReadConf()
	}
	if err != nil {
		log.Fatalln(err)
	}
	conf.ConfigureLogging()

	redacted := *conf
	if redacted.Conf.AdminToken != "" {
		redacted.Conf.AdminToken = "<redacted>"
	}
	log.Println("Configuration: ")
	log.Println(util.PrettyPrint(redacted))

	// Fail fast: every key operation needs the secret.
	secret := util.EnvSecret{Name: util.SecretEnvName}
	if _, err := secret.Secret(); err != nil {
		log.Fatalln(err)
	}

	log.Println("Running database migrations...")
	database, err := db.Open(util.ResolveDataPath(conf.Conf.DbPath))
	if err != nil {
		log.Fatalln(err)
	}
	defer database.Close()
	log.Println("Database migrations complete")
	if *migrateOnly {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, database, secret); err != nil {
		log.Fatalln(err)
	}
	log.Printf("%s stopped", util.GetNameAndVersion())
}

func run(ctx context.Context, conf *util.AppConfig, database *db.DB, secret util.EnvSecret) error {
	urls := activitypub.NewURLs(conf.BaseURL())
	directory := activitypub.NewDirectory(database, secret, urls)
	gate := activitypub.NewTrustGate(database)
	outbox := activitypub.NewOutbox(database, urls)
	resolver := activitypub.NewRemoteResolver(conf.DeliveryTimeout())
	health := activitypub.NewHealthTracker(database, conf.BackoffSchedule())

	services := web.Services{
		DB:        database,
		URLs:      urls,
		Directory: directory,
		Processor: activitypub.NewProcessor(database, gate, outbox, resolver, urls),
		Gate:      gate,
		Health:    health,
		Identity: identity.NewEngine(database, secret, urls, identity.Options{
			KeyBits:      conf.Conf.KeyBits,
			Registration: conf.Conf.Registration,
		}),
	}

	g, ctx := errgroup.WithContext(ctx)

	if conf.Conf.WithAp {
		worker := activitypub.NewDeliveryWorker(database, gate, health, activitypub.NewHTTPDeliverer(directory), activitypub.DeliveryOptions{
			Concurrency:           conf.Federation.WorkerConcurrency,
			MaxPerDomainPerMinute: conf.Federation.MaxOutboundPerDomainPerMinute,
			Timeout:               conf.DeliveryTimeout(),
			MaxAttempts:           conf.Federation.MaxDeliveryAttempts,
			MarkerTTL:             conf.MarkerTTL(),
		})
		g.Go(func() error {
			worker.Run(ctx)
			return nil
		})
	}

	router := web.NewRouter(ctx, conf, services)
	g.Go(func() error {
		return web.Serve(ctx, conf, router)
	})

	log.Printf("%s serving %s", util.GetNameAndVersion(), urls.Base)
	return g.Wait()
}
