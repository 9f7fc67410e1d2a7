// scintill-export - Export the ClickHouse feature table to Parquet
//
// Reads a date range of merged feature rows from ClickHouse and writes one
// Parquet file, the interchange format the downstream model training
// consumes.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/scintill-export ./cmd/scintill-export

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/parquet-go/parquet-go"

	"github.com/viventriglia/scintill-ai/internal/config"
)

// Version can be overridden at build time via -ldflags
var Version = "1.2.0"

const dateLayout = "2006-01-02"

const BatchSize = 50_000

// FeatureRow matches the feature table schema. Timestamps are Unix seconds.
type FeatureRow struct {
	Timestamp       int64   `parquet:"time_utc"`
	X               float64 `parquet:"x"`
	Y               float64 `parquet:"y"`
	Z               float64 `parquet:"z"`
	H               float64 `parquet:"h"`
	BMagnitude      float64 `parquet:"b_magnitude"`
	FlowSpeed       float64 `parquet:"flow_speed"`
	ProtonDensity   float64 `parquet:"proton_density"`
	FlowPressure    float64 `parquet:"flow_pressure"`
	ElectricField   float64 `parquet:"electric_field"`
	NSat            float64 `parquet:"n_sat"`
	NSatMildScint   float64 `parquet:"n_sat_mild_scint"`
	NSatStrongScint float64 `parquet:"n_sat_strong_scint"`
	S4Max           float64 `parquet:"s4_max"`
	S4Mean          float64 `parquet:"s4_mean"`
	PercMildScint   float64 `parquet:"perc_mild_scint"`
	PercStrongScint float64 `parquet:"perc_strong_scint"`
	Zenith          float64 `parquet:"zenith"`
	KpMean          float64 `parquet:"kp_mean"`
	Ap              float64 `parquet:"ap"`
	SSN             float64 `parquet:"ssn"`
	F107Obs         float64 `parquet:"f107_obs"`
	F107Adj         float64 `parquet:"f107_adj"`
}

const selectColumns = `time_utc, x, y, z, h, b_magnitude, flow_speed, proton_density, flow_pressure, electric_field,
n_sat, n_sat_mild_scint, n_sat_strong_scint, s4_max, s4_mean, perc_mild_scint, perc_strong_scint,
zenith, kp_mean, ap, ssn, f107_obs, f107_adj`

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	chHost := flag.String("ch-host", cfg.ClickHouseAddr, "ClickHouse address")
	chDB := flag.String("ch-db", cfg.ClickHouseDatabase, "ClickHouse database")
	chTable := flag.String("ch-table", cfg.ClickHouseTable, "ClickHouse table")
	outDir := flag.String("out", filepath.Join("data", "out"), "Output directory")
	fromStr := flag.String("from", "", "Start date (YYYY-MM-DD)")
	toStr := flag.String("to", "", "End date (YYYY-MM-DD, exclusive, default: today)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "scintill-export v%s - Feature Table Parquet Exporter\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Exports merged feature rows from ClickHouse to a Parquet file.\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

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
	log.Printf("Scintill Export v%s", Version)
	log.Println("=========================================================")
	log.Printf("Date range: %s to %s", from.Format(dateLayout), to.Format(dateLayout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Connecting to ClickHouse at %s...", *chHost)
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{*chHost},
		Auth: clickhouse.Auth{
			Database: *chDB,
			Username: "default",
			Password: "",
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		log.Fatalf("ClickHouse connection failed: %v", err)
	}
	defer conn.Close()

	if err := conn.Ping(ctx); err != nil {
		log.Fatalf("ClickHouse ping failed: %v", err)
	}

	tableFQN := fmt.Sprintf("%s.%s", *chDB, *chTable)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE time_utc >= ? AND time_utc < ? ORDER BY time_utc", selectColumns, tableFQN)

	rows, err := conn.Query(ctx, query, from, to)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("Cannot create output directory: %v", err)
	}

	outName := fmt.Sprintf("features_%s_%s.parquet", from.Format("20060102"), to.Format("20060102"))
	outPath := filepath.Join(*outDir, outName)
	tmpPath := outPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		log.Fatalf("Cannot create output file: %v", err)
	}

	startTime := time.Now()
	writer := parquet.NewGenericWriter[FeatureRow](f)
	buf := make([]FeatureRow, 0, BatchSize)
	total := 0

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		if _, err := writer.Write(buf); err != nil {
			return err
		}
		total += len(buf)
		buf = buf[:0]
		return nil
	}

	for rows.Next() {
		var ts time.Time
		var r FeatureRow
		if err := rows.Scan(&ts,
			&r.X, &r.Y, &r.Z, &r.H,
			&r.BMagnitude, &r.FlowSpeed, &r.ProtonDensity, &r.FlowPressure, &r.ElectricField,
			&r.NSat, &r.NSatMildScint, &r.NSatStrongScint, &r.S4Max, &r.S4Mean,
			&r.PercMildScint, &r.PercStrongScint,
			&r.Zenith, &r.KpMean, &r.Ap, &r.SSN, &r.F107Obs, &r.F107Adj,
		); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		r.Timestamp = ts.UTC().Unix()

		buf = append(buf, r)
		if len(buf) >= BatchSize {
			if err := flush(); err != nil {
				log.Fatalf("Parquet write failed: %v", err)
			}
			log.Printf("Exported %d rows...", total)
		}
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Row iteration failed: %v", err)
	}
	if err := flush(); err != nil {
		log.Fatalf("Parquet write failed: %v", err)
	}

	if err := writer.Close(); err != nil {
		log.Fatalf("Parquet close failed: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("File close failed: %v", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		log.Fatalf("Rename failed: %v", err)
	}

	info, _ := os.Stat(outPath)
	elapsed := time.Since(startTime)

	log.Println("=========================================================")
	log.Println("Export Summary")
	log.Println("=========================================================")
	log.Printf("Rows:    %d", total)
	log.Printf("File:    %s (%.2f MB)", outPath, float64(info.Size())/1024/1024)
	log.Printf("Elapsed: %v", elapsed.Round(time.Millisecond))
	log.Println("=========================================================")
}
