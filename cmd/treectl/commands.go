package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"
	"gorm.io/gorm"

	"stockroom/internal/cache"
	"stockroom/internal/config"
	"stockroom/internal/database"
	"stockroom/internal/logger"
	"stockroom/internal/middleware"
	"stockroom/internal/services"
	"stockroom/internal/uuid"
)

var errUnhealthy = errors.New("category tree has integrity violations")

// store is an open database plus the resolved fallback category id, which
// is empty when the fallback is not provisioned.
type store struct {
	cfg        *config.Config
	manager    *database.Manager
	sentinelID string
}

func openStore() (*store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	dbConfig, err := database.NewConfig(cfg)
	if err != nil {
		return nil, err
	}
	manager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, err
	}
	if err := manager.Migrate(); err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	s := &store{cfg: cfg, manager: manager}
	sentinel, err := services.ResolveSentinel(manager.DB(), cfg.SentinelID, cfg.SentinelName)
	if err != nil {
		logger.Get().Warnw("fallback category not resolved", "error", err)
	} else {
		s.sentinelID = sentinel.ID
	}
	return s, nil
}

func (s *store) db() *gorm.DB { return s.manager.DB() }

func (s *store) close() {
	if err := s.manager.Close(); err != nil {
		logger.Get().Warnf("database close error: %v", err)
	}
}

// breadcrumbs returns the shared cache when Redis is configured so a
// repair is visible to running API instances.
func (s *store) breadcrumbs() cache.BreadcrumbCache {
	if s.cfg.RedisAddr == "" {
		return cache.Nop{}
	}
	client, err := cache.Connect(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB)
	if err != nil {
		logger.Get().Warnw("breadcrumb cache unreachable, API caches expire on their own TTL", "error", err)
		return cache.Nop{}
	}
	return cache.NewRedis(client, s.cfg.BreadcrumbTTL)
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Report cycles, orphans, depth overflow, level drift and dangling items",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.close()

			report, err := services.NewIntegrityService(s.db(), cache.Nop{}, s.sentinelID).Check()
			if err != nil {
				return err
			}
			out := c.Root().Writer
			if c.Bool("json") {
				if err := printJSON(out, report); err != nil {
					return err
				}
			} else {
				printReport(out, report)
			}
			if !report.Healthy() {
				return errUnhealthy
			}
			return nil
		},
	}
}

func repairCommand() *cli.Command {
	return &cli.Command{
		Name:  "repair",
		Usage: "Bring the tree back within its invariants",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "print the planned fixes without writing"},
			&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.close()

			result, err := services.NewIntegrityService(s.db(), s.breadcrumbs(), s.sentinelID).Repair(c.Bool("dry-run"))
			if err != nil {
				return err
			}
			out := c.Root().Writer
			if c.Bool("json") {
				return printJSON(out, result)
			}
			printRepair(out, result)
			return nil
		},
	}
}

func sentinelCommand() *cli.Command {
	return &cli.Command{
		Name:  "sentinel",
		Usage: "Create the fallback category if it does not exist",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "fallback category name (default CATEGORY_SENTINEL_NAME)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.close()

			name := c.String("name")
			if name == "" {
				name = s.cfg.SentinelName
			}
			sentinel, created, err := services.EnsureSentinel(s.db(), name)
			if err != nil {
				return err
			}
			verb := "exists"
			if created {
				verb = "created"
			}
			out := c.Root().Writer
			fmt.Fprintf(out, "fallback category %s: %s (%s)\n", verb, sentinel.Name, sentinel.ID)
			fmt.Fprintf(out, "set CATEGORY_SENTINEL_ID=%s to pin it\n", sentinel.ID)
			return nil
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue an operator bearer token",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "operator-id", Usage: "operator id (default: new UUID)"},
			&cli.StringFlag{Name: "name", Required: true, Usage: "operator display name"},
			&cli.DurationFlag{Name: "ttl", Usage: "token lifetime (default JWT_EXPIRES_IN)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			operatorID := c.String("operator-id")
			if operatorID == "" {
				operatorID = uuid.New()
			}
			ttl := c.Duration("ttl")
			if ttl == 0 {
				ttl = cfg.JWTExpirationDur
			}
			token, err := middleware.GenerateOperatorToken(cfg.JWTSecret, operatorID, c.String("name"), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.Root().Writer, token)
			return nil
		},
	}
}

func hashKeyCommand() *cli.Command {
	return &cli.Command{
		Name:      "hash-key",
		Usage:     "Print the CATALOG_API_KEY_HASH value for a catalog API key",
		ArgsUsage: "<key>",
		Action: func(ctx context.Context, c *cli.Command) error {
			key := c.Args().First()
			if key == "" {
				return errors.New("usage: treectl hash-key <key>")
			}
			hash, err := middleware.HashAPIKey(key)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.Root().Writer, hash)
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, r *services.IntegrityReport) {
	status := "healthy"
	if !r.Healthy() {
		status = "UNHEALTHY"
	}
	fmt.Fprintf(w, "categories: %d (%s)\n", r.Nodes, status)
	fmt.Fprintf(w, "fallback:   %s present=%v\n", r.SentinelID, r.SentinelPresent)
	printIDs(w, "cycles", r.Cycles)
	printIDs(w, "dangling parents", r.DanglingParents)
	printIDs(w, "too deep", r.TooDeep)
	for _, d := range r.LevelDrift {
		fmt.Fprintf(w, "level drift: %s stored=%d actual=%d\n", d.ID, d.Stored, d.Actual)
	}
	printIDs(w, "dangling items", r.DanglingItems)
}

func printIDs(w io.Writer, label string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Fprintf(w, "%s: %s\n", label, strings.Join(ids, ", "))
}

func printRepair(w io.Writer, r *services.RepairResult) {
	prefix := "applied"
	if r.DryRun {
		prefix = "planned"
	}
	for _, f := range r.Fixes {
		fmt.Fprintf(w, "%s: %s %s parent %s -> %s level %d -> %d\n",
			prefix, f.Reason, f.ID, parentLabel(f.OldParentID), parentLabel(f.NewParentID), f.OldLevel, f.NewLevel)
	}
	fmt.Fprintf(w, "%s %d fix(es), %d item(s) to fallback category\n", prefix, len(r.Fixes), r.ItemsReassigned)
}

func parentLabel(id *string) string {
	if id == nil {
		return "root"
	}
	return *id
}
