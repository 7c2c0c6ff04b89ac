package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	natsadapter "github.com/samirrijal/shoptrip/internal/adapters/nats"
	"github.com/samirrijal/shoptrip/internal/adapters/objectstore"
	"github.com/samirrijal/shoptrip/internal/adapters/postgres"
	"github.com/samirrijal/shoptrip/internal/core/domain"
	"github.com/samirrijal/shoptrip/internal/core/tripcodec"
	"github.com/samirrijal/shoptrip/internal/pkg/config"
	"github.com/samirrijal/shoptrip/internal/pkg/logging"
	"github.com/samirrijal/shoptrip/internal/pkg/telemetry"
)

// Catalog is the import file: either a bare array of locations or an object
// with a locations field.
type Catalog struct {
	Source    string            `json:"source"`
	Locations []domain.Location `json:"locations"`
}

const batchSize = 500

func main() {
	dryRun := flag.Bool("dry-run", false, "validate without writing")
	archive := flag.String("archive", "", "s3://bucket/key to store the validated catalog under")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load("shoptrip-importer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, "text")

	src := "catalog.json"
	if flag.NArg() > 0 {
		src = flag.Arg(0)
	}

	ctx := context.Background()
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	var objects *objectstore.Store
	if objectstore.IsURI(src) || *archive != "" {
		objects, err = objectstore.New(objectstore.Config{
			Endpoint:  cfg.Objects.Endpoint,
			AccessKey: cfg.Objects.AccessKey,
			SecretKey: cfg.Objects.SecretKey,
			UseSSL:    cfg.Objects.UseSSL,
		})
		if err != nil {
			log.Fatalf("object store: %v", err)
		}
	}

	data, err := readSource(ctx, src, objects)
	if err != nil {
		log.Fatalf("read catalog: %v", err)
	}
	catalog, err := parseCatalog(src, data)
	if err != nil {
		log.Fatalf("parse catalog: %v", err)
	}

	valid, rejected := validate(catalog.Locations, tripcodec.NewSchema(cfg.Catalog.Categories))
	slog.Info("catalog parsed", "source", src, "locations", len(catalog.Locations), "valid", len(valid), "rejected", rejected)
	if *dryRun {
		return
	}

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	start := time.Now()
	if err := importLocations(ctx, postgres.NewLocationRepo(db), valid); err != nil {
		log.Fatalf("import: %v", err)
	}
	slog.Info("catalog imported", "locations", len(valid), "took", time.Since(start).String())

	if *archive != "" {
		if err := archiveCatalog(ctx, objects, *archive, Catalog{Source: src, Locations: valid}); err != nil {
			slog.Warn("archive failed", "target", *archive, "error", err)
		} else {
			slog.Info("catalog archived", "target", *archive)
		}
	}

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, API replicas will pick up the catalog on restart", "error", err)
		return
	}
	defer pub.Close()
	if err := pub.PublishCatalogUpdated(ctx, len(valid)); err != nil {
		slog.Warn("publish catalog update failed", "error", err)
	}
}

// readSource loads a catalog from a local path, an http(s) URL or an
// s3:// object.
func readSource(ctx context.Context, src string, objects *objectstore.Store) ([]byte, error) {
	switch {
	case objectstore.IsURI(src):
		ref, err := objectstore.ParseURI(src)
		if err != nil {
			return nil, err
		}
		return objects.Get(ctx, ref)
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return fetchHTTP(src)
	}
	return os.ReadFile(src)
}

func fetchHTTP(src string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(src)
	client := &fasthttp.Client{ReadTimeout: 2 * time.Minute}
	if err := client.DoTimeout(req, resp, 2*time.Minute); err != nil {
		return nil, err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", src, resp.StatusCode())
	}
	return append([]byte(nil), resp.Body()...), nil
}

func isYAML(src string) bool {
	switch strings.ToLower(path.Ext(src)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// parseCatalog decodes JSON, or YAML when src has a yaml extension. YAML is
// converted to JSON first so both formats share the same field names.
func parseCatalog(src string, data []byte) (Catalog, error) {
	if isYAML(src) {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Catalog{}, fmt.Errorf("yaml: %w", err)
		}
		js, err := json.Marshal(doc)
		if err != nil {
			return Catalog{}, fmt.Errorf("yaml: %w", err)
		}
		data = js
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var locs []domain.Location
		if err := json.Unmarshal(data, &locs); err != nil {
			return Catalog{}, err
		}
		return Catalog{Locations: locs}, nil
	}
	var c Catalog
	err := json.Unmarshal(data, &c)
	return c, err
}

func archiveCatalog(ctx context.Context, objects *objectstore.Store, target string, c Catalog) error {
	ref, err := objectstore.ParseURI(target)
	if err != nil {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return objects.Put(ctx, ref, data, "application/json")
}

// validate drops entries the trip store would refuse to persist, and
// duplicate ids (first one wins).
func validate(locs []domain.Location, schema *tripcodec.Schema) ([]domain.Location, int) {
	seen := make(map[string]struct{}, len(locs))
	out := make([]domain.Location, 0, len(locs))
	for _, l := range locs {
		l.ID = strings.TrimSpace(l.ID)
		if res := schema.ValidateLocation(l); !res.Valid {
			slog.Warn("location rejected", "id", l.ID, "problems", res.Problems)
			continue
		}
		if _, dup := seen[l.ID]; dup {
			slog.Warn("duplicate location id", "id", l.ID)
			continue
		}
		seen[l.ID] = struct{}{}
		out = append(out, l)
	}
	return out, len(locs) - len(out)
}

type upserter interface {
	UpsertBatch(ctx context.Context, locs []domain.Location) error
}

// importLocations writes the catalog in batches, four at a time.
func importLocations(ctx context.Context, repo upserter, locs []domain.Location) error {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanCatalogImport)
	defer span.End()
	span.SetAttributes(attribute.Int(telemetry.AttrCatalogCount, len(locs)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(locs); start += batchSize {
		end := start + batchSize
		if end > len(locs) {
			end = len(locs)
		}
		batch := locs[start:end]
		g.Go(func() error {
			if err := repo.UpsertBatch(ctx, batch); err != nil {
				return fmt.Errorf("batch %d-%d: %w", start, end, err)
			}
			return nil
		})
	}
	return g.Wait()
}
