// scintill-ingest - Build the merged feature dataset and ingest into ClickHouse
//
// Runs the full pipeline (magnetometer + solar wind + solar geometry +
// daily indices + optional scintillation target) for a date range and
// inserts the resulting rows into ClickHouse using the native columnar
// protocol.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/scintill-ingest ./cmd/scintill-ingest

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"

	"github.com/viventriglia/scintill-ai/internal/config"
	"github.com/viventriglia/scintill-ai/internal/ismr"
	"github.com/viventriglia/scintill-ai/internal/logging"
	"github.com/viventriglia/scintill-ai/internal/pipeline"
	"github.com/viventriglia/scintill-ai/internal/timeseries"
)

// Version can be overridden at build time via -ldflags
var Version = "1.2.0"

const dateLayout = "2006-01-02"

// FeatureBatch holds column data for native insert. The feature columns
// are dynamic: whatever the built dataset carries.
type FeatureBatch struct {
	Time  *proto.ColDateTime
	names []string
	cols  []*proto.ColFloat64
}

func NewFeatureBatch(columns []string) *FeatureBatch {
	b := &FeatureBatch{
		Time:  new(proto.ColDateTime),
		names: columns,
		cols:  make([]*proto.ColFloat64, len(columns)),
	}
	for i := range b.cols {
		b.cols[i] = new(proto.ColFloat64)
	}
	return b
}

func (b *FeatureBatch) Reset() {
	b.Time.Reset()
	for _, c := range b.cols {
		c.Reset()
	}
}

func (b *FeatureBatch) Len() int {
	return b.Time.Rows()
}

func (b *FeatureBatch) Input() proto.Input {
	input := proto.Input{{Name: "time_utc", Data: b.Time}}
	for i, name := range b.names {
		input = append(input, proto.InputColumn{Name: name, Data: b.cols[i]})
	}
	return input
}

func (b *FeatureBatch) AddRow(ts time.Time, values []float64) {
	b.Time.Append(ts)
	for i, v := range values {
		b.cols[i].Append(v)
	}
}

func flushBatch(ctx context.Context, conn *ch.Client, tableFQN string, batch *FeatureBatch) error {
	if batch.Len() == 0 {
		return nil
	}

	names := make([]string, 0, len(batch.names)+1)
	names = append(names, "time_utc")
	names = append(names, batch.names...)

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES", tableFQN, strings.Join(names, ", "))
	return conn.Do(ctx, ch.Query{
		Body:  query,
		Input: batch.Input(),
	})
}

// ensureTable creates the feature table when it does not exist yet. Every
// feature column is Float64; NaN marks missing values.
func ensureTable(ctx context.Context, conn *ch.Client, tableFQN string, columns []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", tableFQN)
	b.WriteString("  time_utc DateTime('UTC')")
	for _, name := range columns {
		fmt.Fprintf(&b, ",\n  %s Float64", name)
	}
	b.WriteString("\n) ENGINE = ReplacingMergeTree ORDER BY time_utc")
	return conn.Do(ctx, ch.Query{Body: b.String()})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	chHost := flag.String("ch-host", cfg.ClickHouseAddr, "ClickHouse address")
	chDB := flag.String("ch-db", cfg.ClickHouseDatabase, "ClickHouse database")
	chTable := flag.String("ch-table", cfg.ClickHouseTable, "ClickHouse table")
	dataDir := flag.String("data-dir", cfg.DataDir, "Raw data directory")
	fromStr := flag.String("from", "", "Start date (YYYY-MM-DD)")
	toStr := flag.String("to", "", "End date (YYYY-MM-DD, exclusive, default: today)")
	batchSize := flag.Int("batch", 50000, "Rows per insert batch")
	truncate := flag.Bool("truncate", false, "Truncate table before insert")
	dryRun := flag.Bool("dry-run", false, "Build the dataset without inserting")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "scintill-ingest v%s - Feature Dataset Ingester\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Builds the merged feature dataset and ingests it into ClickHouse.\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg.DataDir = *dataDir

	if *fromStr == "" {
		fmt.Fprintf(os.Stderr, "Error: -from is required (YYYY-MM-DD)\n")
		os.Exit(1)
	}
	from, err := time.Parse(dateLayout, *fromStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid -from date. Use YYYY-MM-DD format\n")
		os.Exit(1)
	}
	to := time.Now().UTC().Truncate(24 * time.Hour)
	if *toStr != "" {
		if to, err = time.Parse(dateLayout, *toStr); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Invalid -to date. Use YYYY-MM-DD format\n")
			os.Exit(1)
		}
	}
	if !to.After(from) {
		fmt.Fprintf(os.Stderr, "Error: -to must be after -from\n")
		os.Exit(1)
	}

	log.Println("=========================================================")
	log.Printf("Scintill Ingest v%s", Version)
	log.Println("=========================================================")
	log.Printf("Data dir:   %s", cfg.DataDir)
	log.Printf("Date range: %s to %s", from.Format(dateLayout), to.Format(dateLayout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(*cfg, "scintill-ingest")

	var fetcher pipeline.ObservationFetcher
	if cfg.ISMRAPIKey != "" {
		client, err := ismr.NewClient(ismr.ClientConfig{
			BaseURL: cfg.ISMRBaseURL,
			APIKey:  cfg.ISMRAPIKey,
			Station: cfg.Station.Name,
			Chunk:   cfg.ISMRChunk,
			Pause:   cfg.ISMRPause,
		})
		if err != nil {
			log.Fatalf("ISMR client error: %v", err)
		}
		fetcher = client
	}

	startTime := time.Now()
	ds, err := pipeline.New(cfg, logger, fetcher).Build(ctx, from, to)
	if err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}

	tbl := ds.Table
	log.Printf("Dataset: %d rows, %d columns (%s)", tbl.Len(), len(tbl.Columns()), strings.Join(ds.Sources, "+"))

	if *dryRun {
		log.Println("Dry run, skipping insert")
		printSummary(tbl, startTime, 0)
		return
	}

	log.Printf("Connecting to ClickHouse at %s...", *chHost)
	conn, err := ch.Dial(ctx, ch.Options{
		Address:     *chHost,
		Database:    *chDB,
		Compression: ch.CompressionLZ4,
	})
	if err != nil {
		log.Fatalf("ClickHouse connection failed: %v", err)
	}
	defer conn.Close()

	tableFQN := fmt.Sprintf("%s.%s", *chDB, *chTable)
	log.Printf("Table: %s", tableFQN)

	if err := ensureTable(ctx, conn, tableFQN, tbl.Columns()); err != nil {
		log.Fatalf("Create table failed: %v", err)
	}

	if *truncate {
		log.Printf("Truncating table %s...", tableFQN)
		if err := conn.Do(ctx, ch.Query{Body: fmt.Sprintf("TRUNCATE TABLE %s", tableFQN)}); err != nil {
			log.Printf("Truncate warning: %v", err)
		}
	}

	batch := NewFeatureBatch(tbl.Columns())
	inserted := 0

	for i := 0; i < tbl.Len(); i++ {
		if ctx.Err() != nil {
			log.Println("Shutdown requested, stopping insert")
			break
		}

		batch.AddRow(tbl.Time(i), tbl.Row(i))

		if batch.Len() >= *batchSize {
			if err := flushBatch(ctx, conn, tableFQN, batch); err != nil {
				log.Fatalf("Insert failed: %v", err)
			}
			inserted += batch.Len()
			log.Printf("Inserted %d / %d rows", inserted, tbl.Len())
			batch.Reset()
		}
	}

	if err := flushBatch(ctx, conn, tableFQN, batch); err != nil {
		log.Fatalf("Insert failed: %v", err)
	}
	inserted += batch.Len()

	printSummary(tbl, startTime, inserted)
}

func printSummary(tbl *timeseries.Table, startTime time.Time, inserted int) {
	elapsed := time.Since(startTime)
	log.Println("=========================================================")
	log.Println("Ingest Summary")
	log.Println("=========================================================")
	log.Printf("Rows built:    %d", tbl.Len())
	log.Printf("Rows inserted: %d", inserted)
	log.Printf("Columns:       %d", len(tbl.Columns()))
	log.Printf("Elapsed:       %v", elapsed.Round(time.Millisecond))
	log.Println("=========================================================")
}
