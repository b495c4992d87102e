// modelctl manages model bundles in the Redis registry and the local
// artifact directory.
//
//	modelctl publish -file bundle.yaml [-promote production]
//	modelctl promote -name matchup -version v3 -stage production
//	modelctl show    -name matchup -stage production
//	modelctl install -file bundle.yaml -dir ./artifacts
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/battlelab/matchup/internal/battle"
	"github.com/battlelab/matchup/internal/model"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "publish":
		err = publish(ctx, args, logger)
	case "promote":
		err = promote(ctx, args, logger)
	case "show":
		err = show(ctx, args)
	case "install":
		err = install(args, logger)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		sugar.Fatalw("modelctl failed", "command", cmd, "error", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: modelctl publish|promote|show|install [flags]")
}

func registry() (*model.RedisRegistry, error) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		return nil, fmt.Errorf("missing required environment variable: REDIS_URL")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return model.NewRedisRegistry(model.NewRedisKV(redis.NewClient(opts))), nil
}

// readChecked loads a manifest and builds it once, so nothing that the
// server would reject gets published.
func readChecked(path string) (*model.Manifest, error) {
	m, err := model.ReadManifestFile(path)
	if err != nil {
		return nil, err
	}
	if _, err := m.Bundle(battle.MustDefaultTypeChart()); err != nil {
		return nil, fmt.Errorf("bundle %s rejected: %w", path, err)
	}
	return m, nil
}

func publish(ctx context.Context, args []string, logger *zap.Logger) error {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	file := fs.String("file", "", "bundle manifest (YAML or JSON)")
	stage := fs.String("promote", "", "stage to promote the version to after publishing")
	fs.Parse(args)
	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	m, err := readChecked(*file)
	if err != nil {
		return err
	}
	reg, err := registry()
	if err != nil {
		return err
	}
	if err := reg.Publish(ctx, m); err != nil {
		return err
	}
	logger.Sugar().Infow("Bundle published", "model", m.Name, "version", m.Version)

	if *stage != "" {
		if err := reg.Promote(ctx, m.Name, m.Version, *stage); err != nil {
			return err
		}
		logger.Sugar().Infow("Bundle promoted", "model", m.Name, "version", m.Version, "stage", *stage)
	}
	return nil
}

func promote(ctx context.Context, args []string, logger *zap.Logger) error {
	fs := flag.NewFlagSet("promote", flag.ExitOnError)
	name := fs.String("name", "matchup", "model name")
	version := fs.String("version", "", "published version")
	stage := fs.String("stage", "production", "target stage")
	fs.Parse(args)
	if *version == "" {
		return fmt.Errorf("-version is required")
	}

	reg, err := registry()
	if err != nil {
		return err
	}
	if err := reg.Promote(ctx, *name, *version, *stage); err != nil {
		return err
	}
	logger.Sugar().Infow("Bundle promoted", "model", *name, "version", *version, "stage", *stage)
	return nil
}

func show(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	name := fs.String("name", "matchup", "model name")
	stage := fs.String("stage", "production", "stage")
	fs.Parse(args)

	reg, err := registry()
	if err != nil {
		return err
	}
	m, err := reg.Fetch(ctx, *name, *stage)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"name":           m.Name,
		"version":        m.Version,
		"stage":          m.Stage,
		"schema_version": m.SchemaVersion,
		"columns":        len(m.Columns),
		"scorer":         m.Scorer.Kind,
		"trained_at":     m.TrainedAt,
	})
}

func install(args []string, logger *zap.Logger) error {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	file := fs.String("file", "", "bundle manifest (YAML or JSON)")
	dir := fs.String("dir", "./artifacts", "local artifact directory")
	fs.Parse(args)
	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	m, err := readChecked(*file)
	if err != nil {
		return err
	}
	if err := model.NewLocalArtifacts(*dir).Save(m); err != nil {
		return err
	}
	logger.Sugar().Infow("Bundle installed", "model", m.Name, "version", m.Version, "dir", *dir)
	return nil
}
