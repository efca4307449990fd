// README: One-shot reconciliation sweep; reports ongoing records already present in a terminal collection.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"opsconsole/internal/infra"
	"opsconsole/internal/modules/events"
	"opsconsole/internal/modules/lifecycle"
)

type Config struct {
	ProjectID       string
	CredentialsFile string
	DSN             string
	RedisAddr       string
	Domains         string
	Apply           bool
	Timeout         time.Duration
}

func loadConfig() Config {
	_ = godotenv.Load()

	var cfg Config
	flag.StringVar(&cfg.ProjectID, "project", os.Getenv("OPS_FIREBASE_PROJECT_ID"), "Firebase project id")
	flag.StringVar(&cfg.CredentialsFile, "credentials", os.Getenv("OPS_FIREBASE_CREDENTIALS"), "Service account JSON path")
	flag.StringVar(&cfg.DSN, "dsn", os.Getenv("OPS_DB_DSN"), "Postgres DSN for the audit trail (optional)")
	flag.StringVar(&cfg.RedisAddr, "redis", os.Getenv("OPS_REDIS_ADDR"), "Redis address for the in-flight guard (optional)")
	flag.StringVar(&cfg.Domains, "domains", "", "Comma separated domains; empty sweeps all")
	flag.BoolVar(&cfg.Apply, "apply", false, "Delete the ongoing copies instead of only reporting them")
	flag.DurationVar(&cfg.Timeout, "timeout", 2*time.Minute, "Total timeout")
	flag.Parse()
	return cfg
}

func main() {
	cfg := loadConfig()
	logger, err := infra.NewLogger(os.Getenv("OPS_LOG_LEVEL"), "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("reconcile failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg Config, logger *zap.Logger) error {
	if cfg.ProjectID == "" {
		return fmt.Errorf("-project or OPS_FIREBASE_PROJECT_ID is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	fb, err := infra.NewFirebase(ctx, cfg.ProjectID, cfg.CredentialsFile)
	if err != nil {
		return err
	}
	defer fb.Close()

	deps := lifecycle.Deps{Store: lifecycle.NewFirestoreStore(fb.Firestore), Logger: logger}
	if cfg.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DSN, 2)
		if err != nil {
			return err
		}
		defer pool.Close()
		deps.Events = events.NewStore(pool)
	}
	if cfg.RedisAddr != "" {
		client, err := infra.NewRedis(ctx, cfg.RedisAddr, os.Getenv("OPS_REDIS_PASSWORD"))
		if err != nil {
			return err
		}
		defer client.Close()
		deps.Guard = lifecycle.NewRedisGuard(client, 0)
	}
	svc := lifecycle.NewService(deps)

	domains, err := selectDomains(cfg.Domains)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	var total int
	for _, d := range domains {
		rep, err := svc.Reconcile(ctx, d, cfg.Apply)
		if err != nil {
			return fmt.Errorf("%s: %w", d, err)
		}
		total += len(rep.Duplicates)
		if err := enc.Encode(rep); err != nil {
			return err
		}
	}
	logger.Info("reconcile finished", zap.Int("duplicates", total), zap.Bool("applied", cfg.Apply))
	return nil
}

func selectDomains(list string) ([]lifecycle.Domain, error) {
	if strings.TrimSpace(list) == "" {
		var out []lifecycle.Domain
		for _, cfg := range lifecycle.Domains() {
			out = append(out, cfg.Domain)
		}
		return out, nil
	}
	var out []lifecycle.Domain
	for _, slug := range strings.Split(list, ",") {
		cfg, err := lifecycle.LookupDomain(slug)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", slug, err)
		}
		out = append(out, cfg.Domain)
	}
	return out, nil
}
