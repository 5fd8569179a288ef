package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	capi "github.com/hashicorp/consul/api"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/spf13/viper"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"

	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/consul"
	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/postgres"
	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/storage"
	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/transcriber"
	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/transcriber/google"
	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/utils"
	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/worker"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	go utils.RunPerfEndpoint()

	data := &worker.ServiceData{}
	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}

	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	data.GueClient, err = gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	data.WorkerCount = defaultV(cfg.GetInt("worker.count"), 5)
	data.Testing = cfg.GetBool("worker.testing")
	data.MsgSender, err = postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}
	filer, err := storage.NewFiler(ctx, storage.Options{Bucket: cfg.GetString("filer.bucket"),
		URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"),
		Key: cfg.GetString("filer.key"), SSL: cfg.GetBool("filer.ssl")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}
	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}

	data.DB = db

	factory, err := transcriber.NewFactory(cfg.GetString("transcriber.primary"),
		loadProviders(cfg), filer)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init transcriber factory")
	}

	ctx, cancelFunc := context.WithCancel(context.Background())

	if url := cfg.GetString("consul.url"); url != "" {
		cCfg := capi.DefaultConfig()
		cCfg.Address = url
		cProvider, err := consul.NewProvider(cCfg, cfg.GetString("consul.service"))
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init consul provider")
		}
		checkInterval := defaultV(cfg.GetDuration("consul.checkInterval"), time.Second*30)
		if _, err := cProvider.StartRegistryLoop(ctx, checkInterval); err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't start consul check loop")
		}
		factory.WithEndpointSource(cProvider)
	}
	data.Provider = factory

	printBanner()

	doneCh, err := worker.StartWorkerService(ctx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start worker service")
	}
	/////////////////////// Waiting for terminate
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("Got exit signal")
	case <-doneCh:
		goapp.Log.Info().Msg("Service exit")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

func loadProviders(cfg *viper.Viper) map[string]transcriber.ProviderConfig {
	res := map[string]transcriber.ProviderConfig{}
	for name := range cfg.GetStringMap("transcriber.providers") {
		pr := "transcriber.providers." + name
		res[name] = transcriber.ProviderConfig{
			Endpoints: google.Endpoints{
				RecognizeURL: cfg.GetString(pr + ".recognizeUrl"),
				BatchURL:     cfg.GetString(pr + ".batchUrl"),
				OperationURL: cfg.GetString(pr + ".operationUrl")},
			ResultPrefix:     cfg.GetString(pr + ".resultPrefix"),
			RoutingOverrides: loadRouting(cfg, pr+".routing"),
			DisableDiarized:  cfg.GetBool(pr + ".disableDiarized"),
			PollTimeout:      cfg.GetDuration(pr + ".pollTimeout"),
			PollWait:         cfg.GetDuration(pr + ".pollWait")}
	}
	return res
}

func loadRouting(cfg *viper.Viper, key string) map[string]google.Routing {
	res := map[string]google.Routing{}
	for lang := range cfg.GetStringMap(key) {
		res[lang] = google.Routing{Region: cfg.GetString(key + "." + lang + ".region"),
			Model: cfg.GetString(key + "." + lang + ".model")}
	}
	return res
}

func defaultV[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
   __                                  _ __
  / /__________ _____  _______________(_) /_  ___
 / __/ ___/ __ ` + "`" + `/ __ \/ ___/ ___/ ___/ / __ \/ _ \
/ /_/ /  / /_/ / / / (__  ) /__/ /  / / /_/ /  __/
\__/_/   \__,_/_/ /_/____/\___/_/  /_/_.___/\___/

                      __
 _      ______  _____/ /_____  _____
| | /| / / __ \/ ___/ //_/ _ \/ ___/
| |/ |/ / /_/ / /  / ,< /  __/ /
|__/|__/\____/_/  /_/|_|\___/_/     v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/howie/coaching-transcript-tool-sub000"))
}
