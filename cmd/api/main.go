package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/ecodevices2mqtt/internal/adapter/actor"
	"github.com/berfenger/ecodevices2mqtt/internal/config"
	"github.com/berfenger/ecodevices2mqtt/internal/controller"
	"github.com/berfenger/ecodevices2mqtt/internal/core/actor"
	"github.com/berfenger/ecodevices2mqtt/internal/core/domain"
	"github.com/berfenger/ecodevices2mqtt/internal/metrics"
	"github.com/berfenger/ecodevices2mqtt/internal/server"
	"github.com/berfenger/ecodevices2mqtt/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	v := config.NewViper()
	cfg, err := config.Load(v)
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	slog.Info("Using", "config", cfg.Redacted())

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRequestRecorder()

	// first connection to the gateway, fail fast
	manager := controller.NewManager(logger, controller.WithInstrument(recorder.Instrument()))
	defer manager.Close()

	setupCtx, cancelSetup := context.WithTimeout(context.Background(), cfg.EcoDevices.Timeout()*3)
	_, err = manager.Reload(setupCtx, *cfg)
	cancelSetup()
	if err != nil {
		logger.Error("cannot set up eco-devices", zap.Error(err))
		return
	}

	if err := metrics.Register(registry, metrics.NewCollector(manager), recorder); err != nil {
		panic(err)
	}

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, ecoDevicesActorProvider(manager, logger), mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Error("cannot spawn master actor", zap.Error(err))
		return
	}

	// hot reload of the gateway settings
	manager.OnChange(func(c *controller.Controller) {
		ctx.Send(pid, domain.ControllerChanged{Config: c.Config()})
	})
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	manager.WatchConfig(watchCtx, v)

	server := server.NewServer(*cfg, ctx, pid, manager, registry, logger)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func ecoDevicesActorProvider(manager *controller.Manager, logger *zap.Logger) actor.EcoDevicesActorProvider {
	return func() *adactor.EcoDevicesActor {
		return adactor.NewEcoDevicesActor(manager, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}
