// Catalog ingest pipeline for lookbook.
// Creates the product FT index and loads a JSONL catalog: embeds each
// product's description and image, writes the indexed hash document and the
// metadata JSON document.
//
// Usage:
//
//	lookbook-ingest -catalog data/catalog.jsonl -workers 4
//
// Connection and provider settings come from the same config/<ENV>.yaml the
// API server uses.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lookbook-ai/lookbook/internal/config"
	"github.com/lookbook-ai/lookbook/internal/db"
	dbRedis "github.com/lookbook-ai/lookbook/internal/db/redis"
	"github.com/lookbook-ai/lookbook/internal/domain"
	"github.com/lookbook-ai/lookbook/internal/domain/catalog"
	logpkg "github.com/lookbook-ai/lookbook/internal/logger"
	catalogrepo "github.com/lookbook-ai/lookbook/internal/repository/catalog"
	openaiTransport "github.com/lookbook-ai/lookbook/internal/transport/openai"
)

type flags struct {
	catalogPath string
	dataRoot    string
	workers     int
	maxRows     int
	recreate    bool
}

func parseFlags() flags {
	f := flags{}
	flag.StringVar(&f.catalogPath, "catalog", "data/catalog.jsonl", "path to JSONL catalog file")
	flag.StringVar(&f.dataRoot, "data-root", "", "image root directory (default: catalog.data_root from config)")
	flag.IntVar(&f.workers, "workers", 4, "number of parallel ingest workers")
	flag.IntVar(&f.maxRows, "max-rows", 0, "max products to load (0=unlimited)")
	flag.BoolVar(&f.recreate, "recreate", false, "drop and recreate the index before loading")
	flag.Parse()
	return f
}

func main() {
	_ = godotenv.Load()
	f := parseFlags()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, f); err != nil {
		cancel()
		log.Fatal(err)
	}
}

func run(ctx context.Context, f flags) error {
	start := time.Now()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if f.dataRoot == "" {
		f.dataRoot = cfg.Catalog.DataRoot
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}

	indexName := cfg.Catalog.KeyPrefix + "products:idx"
	docPrefix := cfg.Catalog.KeyPrefix + "products:"

	if err := ensureIndex(ctx, store, cfg, indexName, docPrefix, f.recreate); err != nil {
		return err
	}

	embedder := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	metaRepo := catalogrepo.New(store, cfg.Catalog.KeyPrefix)

	products, err := readCatalog(f.catalogPath, f.maxRows)
	if err != nil {
		return err
	}
	logger.Info("Catalog loaded", zap.Int("products", len(products)))

	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for _, p := range products {
		g.Go(func() error {
			if err := ingestOne(gctx, store, embedder, metaRepo, docPrefix, f.dataRoot, p); err != nil {
				return fmt.Errorf("product %s: %w", p.ProductID, err)
			}
			if n := done.Add(1); n%100 == 0 {
				logger.Info("Progress", zap.Int64("ingested", n), zap.Int("total", len(products)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Ingest complete",
		zap.Int64("products", done.Load()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func ensureIndex(ctx context.Context, store db.Store, cfg config.Config, indexName, docPrefix string, recreate bool) error {
	if recreate {
		if err := store.DropIndex(ctx, indexName); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
			return fmt.Errorf("drop index: %w", err)
		}
	}

	def := db.NewIndex(indexName).
		Prefix(docPrefix).
		Tag("product_id").
		Tag("brand").
		Tag("category").
		Tag("sub_category").
		Tag("color").
		VectorHNSW("text_vector", cfg.Catalog.VectorDim, db.DistanceCosine,
			cfg.Index.HNSWM, cfg.Index.HNSWEFConstruct).
		VectorHNSW("image_vector", cfg.Catalog.VectorDim, db.DistanceCosine,
			cfg.Index.HNSWM, cfg.Index.HNSWEFConstruct).
		Build()

	if err := store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// readCatalog reads one product per JSONL line. Malformed lines abort the run
// with the line number attached.
func readCatalog(path string, maxRows int) ([]catalog.Product, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer file.Close()

	var products []catalog.Product
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var p catalog.Product
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("catalog line %d: %w", line, err)
		}
		if p.ProductID == "" {
			return nil, fmt.Errorf("catalog line %d: missing product_id", line)
		}
		products = append(products, p)

		if maxRows > 0 && len(products) >= maxRows {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return products, nil
}

func ingestOne(
	ctx context.Context,
	store db.Store,
	embedder domain.Embedder,
	metaRepo *catalogrepo.Repo,
	docPrefix, dataRoot string,
	p catalog.Product,
) error {
	fields := map[string]string{
		"product_id":   p.ProductID,
		"description":  p.Description,
		"image_path":   p.ImagePath,
		"brand":        p.Brand,
		"category":     p.Category,
		"sub_category": p.SubCategory,
		"color":        p.Color,
	}

	if p.Description != "" {
		res, err := embedder.EmbedText(ctx, p.Description)
		if err != nil {
			return fmt.Errorf("embed description: %w", err)
		}
		fields["text_vector"] = db.VectorBytes(res.Embedding)
	}

	if p.ImagePath != "" {
		image, err := os.ReadFile(filepath.Clean(filepath.Join(dataRoot, filepath.FromSlash(p.ImagePath))))
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		res, err := embedder.EmbedImage(ctx, image)
		if err != nil {
			return fmt.Errorf("embed image: %w", err)
		}
		fields["image_vector"] = db.VectorBytes(res.Embedding)
	}

	if err := store.HSet(ctx, docPrefix+p.ProductID, fields); err != nil {
		return fmt.Errorf("write document: %w", err)
	}

	if err := metaRepo.Upsert(ctx, p); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}
