package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"warden/api/model"
	"warden/api/probe"
)

func main() {
	serverURL := envOr("WARDEN_SERVER_URL", "http://localhost:7070")
	servicesFile := envOr("WARDEN_SERVICES_FILE", "services.yaml")
	token := os.Getenv("WARDEN_API_TOKEN")

	registry, err := model.LoadRegistry(servicesFile)
	if err != nil {
		log.Fatalf("Failed to load services file: %v", err)
	}

	// A global override flattens every per-service interval, handy when
	// smoke-testing a cluster.
	var override time.Duration
	if raw := os.Getenv("WARDEN_CHECK_INTERVAL"); raw != "" {
		override, err = time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("Invalid WARDEN_CHECK_INTERVAL %q: %v", raw, err)
		}
	}

	log.Printf("probing %d services in cluster %s", registry.Len(), registry.Cluster)
	log.Printf("reporting to %s", serverURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reports := make(chan model.Report, 64)
	prober := probe.New()

	var wg sync.WaitGroup
	for _, svc := range registry.All() {
		wg.Add(1)
		go func(svc *model.ServiceConfig) {
			defer wg.Done()
			probeLoop(ctx, prober, svc, override, reports)
		}(svc)
	}

	rep := &reporter{
		URL:    serverURL + "/api/report",
		Token:  token,
		Client: &http.Client{Timeout: 3 * time.Second},
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		rep.run(reports)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down agent...")
	cancel()
	wg.Wait()
	close(reports)
	<-done
}

// probeLoop checks one service on its own schedule until ctx is cancelled.
func probeLoop(ctx context.Context, prober *probe.Prober, svc *model.ServiceConfig, override time.Duration, reports chan<- model.Report) {
	interval := svc.Interval.Std()
	if override > 0 {
		interval = override
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Probe once immediately on start
	probeOnce(ctx, prober, svc, reports)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeOnce(ctx, prober, svc, reports)
		}
	}
}

func probeOnce(ctx context.Context, prober *probe.Prober, svc *model.ServiceConfig, reports chan<- model.Report) {
	report := prober.Report(ctx, svc)
	select {
	case reports <- report:
	default:
		log.Printf("report for %s dropped, send queue full", svc.Name)
	}
}

// reporter delivers probe results to the control plane. Undeliverable
// reports are logged and dropped; the server treats the gap as staleness.
type reporter struct {
	URL    string
	Token  string
	Client *http.Client
}

func (r *reporter) run(reports <-chan model.Report) {
	for report := range reports {
		if err := r.send(report); err != nil {
			log.Printf("report for %s failed: %v", report.Service, err)
			continue
		}
		log.Printf("report sent: %s healthy=%t", report.Service, report.Healthy)
	}
}

func (r *reporter) send(report model.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", r.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
