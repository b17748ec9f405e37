package main

import (
	"log"
	"net/http"
	"time"

	"github.com/pysugar/nexus-console/internal/api"
	"github.com/pysugar/nexus-console/internal/cache"
	"github.com/pysugar/nexus-console/internal/config"
	"github.com/pysugar/nexus-console/internal/db"
	"github.com/pysugar/nexus-console/internal/gateway"
	"github.com/pysugar/nexus-console/internal/logstore"
	"github.com/pysugar/nexus-console/internal/logview"
	"github.com/pysugar/nexus-console/internal/version"
)

func main() {
	// Load configuration (hot-reloaded on change)
	cfgStore, err := config.LoadAndWatch()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := cfgStore.Get()

	// Initialize database
	database, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if cfg.DB.SeedFile != "" {
		n, err := db.SeedFromFile(database, cfg.DB.SeedFile)
		if err != nil {
			log.Fatalf("Failed to seed database: %v", err)
		}
		if n > 0 {
			log.Printf("🌱 Seeded %d sample log rows", n)
		}
	}

	store := logstore.New(database, cfg.View.PageSize)

	// Build the searcher chain the filter engines use: remote gateway
	// client when configured, otherwise the local store; optionally
	// fronted by the redis result cache.
	var searcher logview.Searcher
	token := cfg.Gateway.Token
	if cfg.Gateway.URL != "" {
		searcher = gateway.NewClient(cfg.Gateway.URL)
		log.Printf("🔎 Searching logs on remote gateway %s", cfg.Gateway.URL)
	} else {
		searcher = gateway.NewLocal(store)
		token = db.GetAPIToken(database)
		log.Printf("🔎 Searching logs in the local store")
	}
	if cfg.Redis.Enabled {
		rdb, err := cache.NewRedis(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		searcher = cache.NewSearcher(searcher, rdb, time.Duration(cfg.Redis.TTLSeconds)*time.Second)
		log.Printf("⚡ Redis search cache enabled (%s)", cfg.Redis.Address)
	}

	registry := api.NewRegistry(
		store,
		searcher,
		token,
		time.Duration(cfg.View.DebounceMS)*time.Millisecond,
		time.Duration(cfg.View.SessionTTLMinutes)*time.Minute,
	)
	defer registry.Close()

	router := api.NewRouter(api.RouterOptions{
		Store:         store,
		Registry:      registry,
		APIToken:      db.GetAPIToken(database),
		AdminPassword: cfg.Server.AdminPassword,
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	log.Printf("🚀 Nexus Console %s starting on http://%s", version.Version, addr)
	log.Printf("📜 Log API: http://%s/api/request-logs", addr)
	log.Printf("🔬 View sessions: http://%s/api/view/sessions", addr)

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
