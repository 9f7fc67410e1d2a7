// omniweb-download - Downloader for OMNIWeb high-resolution solar wind data
//
// Fetches one .lst file per year from the NASA OMNIWeb CGI endpoint
// (1-minute cadence, selected plasma and field variables). Years are
// fetched sequentially: the upstream CGI is rate-sensitive and a year of
// minute data is a single large response anyway.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/omniweb-download ./cmd/omniweb-download

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/viventriglia/scintill-ai/internal/fetch"
	"github.com/viventriglia/scintill-ai/internal/omniweb"
)

// Version can be overridden at build time via -ldflags
var Version = "1.2.0"

func main() {
	destDir := flag.String("dest", filepath.Join("data", "in", "omni"), "Destination directory")
	startYear := flag.Int("start", time.Now().UTC().Year(), "First year to download")
	endYear := flag.Int("end", 0, "Last year to download (default: start year)")
	timeout := flag.Duration("timeout", 5*time.Minute, "HTTP timeout per year file")
	pause := flag.Duration("pause", 2*time.Second, "Pause between year requests")
	listOnly := flag.Bool("list", false, "List request URLs without downloading")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "omniweb-download v%s - OMNIWeb Solar Wind Downloader\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Downloads 1-minute solar wind variables, one file per year.\n\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nVariables:\n")
		for _, v := range omniweb.DefaultVariables {
			fmt.Fprintf(os.Stderr, "  %-16s (code %d)\n", v.Name, v.Code)
		}
	}

	flag.Parse()

	if *endYear == 0 {
		*endYear = *startYear
	}
	if *startYear < 1981 || *endYear < *startYear {
		fmt.Fprintf(os.Stderr, "Error: Invalid year range (high-resolution OMNI starts in 1981)\n")
		os.Exit(1)
	}

	if *listOnly {
		fmt.Printf("OMNIWeb year files (%d years):\n\n", *endYear-*startYear+1)
		for year := *startYear; year <= *endYear; year++ {
			fmt.Printf("  %s\n", omniweb.RequestURL(year, omniweb.DefaultVariables))
		}
		return
	}

	fmt.Println("=========================================================")
	fmt.Printf("OMNIWeb Download v%s\n", Version)
	fmt.Println("=========================================================")
	fmt.Printf("Source:      %s\n", omniweb.BaseURL)
	fmt.Printf("Destination: %s\n", *destDir)
	fmt.Printf("Years:       %d to %d\n", *startYear, *endYear)
	fmt.Printf("Timeout:     %v per year\n", *timeout)
	fmt.Println()

	if err := os.MkdirAll(*destDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Cannot create directory: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()
	stats := &fetch.Stats{}
	client := fetch.NewClient(*timeout)

	for year := *startYear; year <= *endYear; year++ {
		if ctx.Err() != nil {
			break
		}

		fname := omniweb.FileName(year)
		destPath := filepath.Join(*destDir, fname)

		skipped, err := fetch.DownloadIfMissing(ctx, client, omniweb.RequestURL(year, omniweb.DefaultVariables), destPath, stats)
		switch {
		case err != nil:
			fmt.Printf("[%s] ERROR: %v\n", fname, err)
		case skipped:
			fmt.Printf("[%s] Skipped (already exists)\n", fname)
		default:
			fmt.Printf("[%s] Downloaded\n", fname)
		}

		if year < *endYear && *pause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(*pause):
			}
		}
	}

	elapsed := time.Since(startTime)

	fmt.Println()
	fmt.Println("=========================================================")
	fmt.Println("Download Summary")
	fmt.Println("=========================================================")
	fmt.Printf("Downloaded: %d files (%.2f MB)\n", stats.Completed.Load(), float64(stats.Bytes.Load())/1024/1024)
	fmt.Printf("Skipped:    %d files (already exist)\n", stats.Skipped.Load())
	fmt.Printf("Failed:     %d files\n", stats.Failed.Load())
	fmt.Printf("Elapsed:    %v\n", elapsed.Round(time.Millisecond))
	fmt.Println("=========================================================")

	if stats.Failed.Load() > 0 {
		os.Exit(1)
	}
}
