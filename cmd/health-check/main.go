// Package main provides a standalone health probe for container health checks
// and monitoring scripts
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/kbcanvas/kbcanvas/internal/infrastructure/config"
	"github.com/kbcanvas/kbcanvas/pkg/healthcheck"
)

const (
	exitCodeSuccess = 0
	exitCodeFailure = 1
	exitCodeError   = 2
)

// Options holds command-line configuration
type Options struct {
	URL        string
	Timeout    time.Duration
	Expect     string
	Format     string
	RetryCount int
	RetryDelay time.Duration
	ConfigPath string
}

type report struct {
	Status  healthcheck.Status `json:"status"`
	Version string             `json:"version,omitempty"`
	Checks  []struct {
		Name    string             `json:"name"`
		Status  healthcheck.Status `json:"status"`
		Message string             `json:"message,omitempty"`
	} `json:"checks,omitempty"`
}

func main() {
	os.Exit(run(parseFlags()))
}

func parseFlags() Options {
	opts := Options{}

	flag.StringVar(&opts.URL, "url", "", "Health endpoint URL (default derived from config)")
	flag.DurationVar(&opts.Timeout, "timeout", 5*time.Second, "Request timeout")
	flag.StringVar(&opts.Expect, "expect", string(healthcheck.StatusDegraded), "Worst acceptable status: healthy or degraded")
	flag.StringVar(&opts.Format, "format", "text", "Output format: text or json")
	flag.IntVar(&opts.RetryCount, "retry", 0, "Number of retries on failure")
	flag.DurationVar(&opts.RetryDelay, "retry-delay", time.Second, "Delay between retries")
	flag.StringVar(&opts.ConfigPath, "config", "", "Configuration file path")

	flag.Parse()

	if opts.URL == "" {
		opts.URL = detectHealthURL(opts.ConfigPath)
	}

	return opts
}

func detectHealthURL(configPath string) string {
	port := 8080
	if cfg, err := config.Load(configPath); err == nil {
		port = cfg.Server.Port
	}
	return fmt.Sprintf("http://127.0.0.1:%d/health", port)
}

func run(opts Options) int {
	var (
		rep *report
		err error
	)

	for attempt := 0; attempt <= opts.RetryCount; attempt++ {
		if attempt > 0 {
			time.Sleep(opts.RetryDelay)
		}

		rep, err = probe(opts)
		if err == nil && acceptable(rep.Status, opts.Expect) {
			break
		}
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		return exitCodeError
	}

	output(rep, opts.Format)

	if !acceptable(rep.Status, opts.Expect) {
		return exitCodeFailure
	}
	return exitCodeSuccess
}

func probe(opts Options) (*report, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rep report
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		return nil, fmt.Errorf("invalid health response (status %d): %w", resp.StatusCode, err)
	}
	return &rep, nil
}

func acceptable(status healthcheck.Status, expect string) bool {
	switch status {
	case healthcheck.StatusHealthy:
		return true
	case healthcheck.StatusDegraded:
		return expect == string(healthcheck.StatusDegraded)
	default:
		return false
	}
}

func output(rep *report, format string) {
	if format == "json" {
		_ = json.NewEncoder(os.Stdout).Encode(rep)
		return
	}

	fmt.Printf("status: %s\n", rep.Status)
	for _, c := range rep.Checks {
		if c.Message != "" {
			fmt.Printf("  %-22s %-10s %s\n", c.Name, c.Status, c.Message)
			continue
		}
		fmt.Printf("  %-22s %s\n", c.Name, c.Status)
	}
}
