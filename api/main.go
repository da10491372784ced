package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"warden/api/audit"
	"warden/api/config"
	"warden/api/consul"
	"warden/api/handler"
	"warden/api/hub"
	"warden/api/model"
	"warden/api/nomad"
	"warden/api/probe"
	"warden/api/remedy"
	"warden/api/status"
	"warden/api/storage"
	"warden/api/store"
	"warden/api/tunnel"
)

func main() {
	cfg := config.Load()

	// Service registry
	reg, err := model.LoadRegistry(cfg.ServicesFile)
	if err != nil {
		log.Fatalf("services: %v", err)
	}
	if cfg.Cluster != "" {
		reg.Cluster = cfg.Cluster
	}
	log.Printf("monitoring %d services in cluster %s", reg.Len(), reg.Cluster)

	// Database (optional). A configured but unreachable database is a
	// deployment error; no database at all means in-memory audit only.
	var db *store.DB
	if cfg.DatabaseURL != "" {
		db, err = store.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()

		if err := store.Migrate(db); err != nil {
			log.Fatalf("migration: %v", err)
		}
	} else {
		log.Println("WARNING: no database configured, report history disabled and audit log in memory only")
	}

	// Nomad
	nomadClient, err := nomad.NewClient(cfg.NomadAddr)
	if err != nil {
		log.Fatalf("nomad: %v", err)
	}
	if err := nomadClient.Healthy(); err != nil {
		log.Printf("WARNING: nomad not healthy (%v)", err)
	} else {
		log.Println("nomad connected at " + cfg.NomadAddr)
	}

	// Consul
	consulClient, err := consul.NewClient(cfg.ConsulAddr)
	if err != nil {
		log.Printf("WARNING: consul unavailable (%v)", err)
	} else {
		if err := consulClient.Healthy(); err != nil {
			log.Printf("WARNING: consul not healthy (%v)", err)
		} else {
			log.Println("consul connected at " + cfg.ConsulAddr)
		}
	}

	// S3 audit archive (optional)
	var s3Client *storage.Client
	if cfg.S3Endpoint != "" {
		s3Client, err = storage.NewClient(storage.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			log.Printf("WARNING: S3 storage unavailable (%v)", err)
		} else if err := s3Client.EnsureBucket(context.Background()); err != nil {
			log.Printf("WARNING: S3 bucket unavailable (%v)", err)
			s3Client = nil
		} else {
			log.Println("S3 storage connected at " + cfg.S3Endpoint)
		}
	}

	// WebSocket hub
	allowedOrigins := []string{"http://localhost:5173", "http://localhost:3000"}
	if cfg.AllowedOrigins != "" {
		for _, o := range strings.Split(cfg.AllowedOrigins, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	ws := hub.New(allowedOrigins)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	go ws.Run(rootCtx)

	// Audit log: durable when a database is attached
	var auditStore audit.Store
	if db != nil {
		auditStore = audit.NewPostgresStore(db.Pool)
	} else {
		auditStore = audit.NewMemoryStore()
	}

	// Status table and remediation engine
	statusStore := status.NewStore(reg)

	engine := remedy.New(statusStore, auditStore)
	engine.Orch = nomadClient
	engine.Tunnel = tunnel.New(cfg.TunnelConfig, cfg.TunnelReload)
	engine.Prober = probe.New()
	engine.WS = ws
	engine.Cooldown = cfg.Cooldown
	engine.AttemptTimeout = cfg.AttemptTimeout
	if s3Client != nil {
		engine.Archive = s3Client
	}

	// Report intake
	intake := status.NewIntake(statusStore, 0)
	intake.Hub = ws
	intake.Notifier = engine
	if db != nil {
		intake.DB = db
	}
	go intake.Run(rootCtx)

	h := handler.New(statusStore, intake, engine, auditStore, db, nomadClient, consulClient, s3Client, ws)

	// Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	// Optional bearer token auth when WARDEN_API_TOKEN is set
	if cfg.APIToken != "" {
		r.Use(bearerAuth(cfg.APIToken))
		log.Println("API token auth enabled")
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"version": Version})
		})

		r.Get("/status", h.ClusterStatus)
		r.Get("/services", h.ListServices)
		r.Post("/report", h.Report)
		r.Get("/audit", h.ListAudit)
		r.Get("/audit/{attemptId}", h.GetAuditEntry)

		r.Route("/services/{id}", func(r chi.Router) {
			r.Use(handler.ValidateServiceID)
			r.Get("/", h.GetService)
			r.Get("/history", h.GetServiceHistory)
			r.Post("/remediate", h.Remediate)
		})
	})

	r.Get("/ws", ws.HandleConnect)

	// Serve UI static files
	if cfg.UIDir != "" {
		fileServer(r, cfg.UIDir)
	}

	srv := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("warden %s listening on %s:%s", Version, cfg.BindAddr, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	rootCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth for WebSocket upgrade and health check. The
			// probing agent sends the same bearer token.
			if r.URL.Path == "/ws" || r.URL.Path == "/api/health" || r.URL.Path == "/api/version" {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(auth[7:]), []byte(token)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func fileServer(r chi.Router, dir string) {
	fs := http.FileServer(http.Dir(dir))
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		if _, err := os.Stat(dir + r.URL.Path); os.IsNotExist(err) {
			http.ServeFile(w, r, dir+"/index.html")
			return
		}
		fs.ServeHTTP(w, r)
	})
}
