package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unplab/unp_core/internal/pkg/cache"
	"github.com/unplab/unp_core/internal/pkg/config"
	"github.com/unplab/unp_core/internal/pkg/datastreams/mongodb"
	"github.com/unplab/unp_core/internal/pkg/datastreams/mqtthandler"
	"github.com/unplab/unp_core/internal/pkg/datastreams/natshandler"
	"github.com/unplab/unp_core/internal/pkg/datastreams/sqldb"
	"github.com/unplab/unp_core/internal/pkg/orchestrator"
	"github.com/unplab/unp_core/internal/pkg/simulator"
	"github.com/unplab/unp_core/internal/pkg/simulator/external"
	"github.com/unplab/unp_core/internal/pkg/simulator/placeholder"
	"github.com/unplab/unp_core/internal/pkg/webservice"
)

func main() {
	log.Println("[Main] Starting UNP_Core")
	configPath := flag.String("config", "./config/core.json", "path to the core configuration file")
	flag.Parse()

	cfg, err := config.New(*configPath)
	if err != nil {
		log.Println("[Main] configuration file unusable, continuing with defaults:", err)
		cfg = config.Default()
	}

	log.Println("[Main] Building Result Cache")
	resultCache := buildCache(cfg)

	log.Println("[Main] Building Engines")
	real, fallback := buildEngines(cfg)

	log.Println("[Main] Assembling Orchestrator")
	orch, err := orchestrator.New(cfg, resultCache, real, fallback)
	if err != nil {
		panic(err)
	}

	log.Println("[Main] Connecting Datastream Services")
	linkDatastreams(orch)
	orch.PublishConfig()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	log.Println("[Main] Starting Webservice")
	svc := webservice.New(orch)
	go func() {
		if err := svc.ListenAndServe(cfg.HTTP.Addr); err != nil {
			log.Println("[Main] webservice stopped:", err)
			sigs <- syscall.SIGTERM
		}
	}()

	<-sigs
	log.Println("[Main] Stopping system")
}

func buildCache(cfg config.Config) *cache.Cache {
	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	switch cfg.Cache.Backend {
	case "redis":
		return cache.New(cache.NewRedisStore(cfg.Cache.RedisAddr, cfg.Cache.RedisDB), ttl)
	default:
		return cache.New(cache.NewMemStore(cfg.Cache.MaxEntries), ttl)
	}
}

func buildEngines(cfg config.Config) (simulator.Simulator, simulator.Simulator) {
	opts := simulator.BuildOptions{
		MergeToleranceM: cfg.Graph.MergeToleranceM,
		MaxEdgeLengthM:  cfg.Graph.MaxEdgeLengthM,
		MaxProjectionM:  cfg.Graph.MaxProjectionM,
	}

	fallback := placeholder.New(opts)

	var real simulator.Simulator
	if cfg.EngineBackend.URL != "" {
		backend := external.NewHTTPBackend(cfg.EngineBackend.URL, nil)
		real = external.New(backend, opts)
		log.Println("[Main] physics engine backend at", cfg.EngineBackend.URL)
	} else {
		log.Println("[Main] no physics engine backend configured, placeholder only")
	}
	return real, fallback
}

// linkDatastreams attaches every configured result consumer. A missing
// config file skips that consumer; the core runs without them.
func linkDatastreams(orch *orchestrator.Orchestrator) {
	if h, err := mongodb.New("./config/database/mongodb.json", orch); err == nil {
		go h.Process()
	} else {
		log.Println("[Main] mongodb stream disabled:", err)
	}
	if h, err := sqldb.New("./config/database/sqldb.json", orch); err == nil {
		go h.Process()
	} else {
		log.Println("[Main] sql stream disabled:", err)
	}
	if h, err := natshandler.New("./config/datastreams/nats.json", orch); err == nil {
		go h.Process()
	} else {
		log.Println("[Main] nats stream disabled:", err)
	}
	if h, err := mqtthandler.New("./config/datastreams/mqtt.json", orch); err == nil {
		go h.Process()
	} else {
		log.Println("[Main] mqtt stream disabled:", err)
	}
}
