// intermagnet-download - Parallel downloader for INTERMAGNET minute data
//
// Downloads per-day IAGA-2002 minute files for one geomagnetic observatory
// from an INTERMAGNET GIN webservice. Supports resume, parallel downloads
// and date range filtering. Files land under <dest>/<STATION>/<year>/.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/intermagnet-download ./cmd/intermagnet-download

package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/viventriglia/scintill-ai/internal/fetch"
	"github.com/viventriglia/scintill-ai/internal/iaga"
)

// Version can be overridden at build time via -ldflags
var Version = "1.2.0"

const DefaultBaseURL = "https://imag-data.bgs.ac.uk/GIN_V1/GINServices"

const dateLayout = "2006-01-02"

// requestURL builds the GIN GetData query for one observatory day.
func requestURL(base, station string, day time.Time) string {
	v := url.Values{}
	v.Set("Request", "GetData")
	v.Set("format", "IAGA2002")
	v.Set("observatoryIagaCode", strings.ToUpper(station))
	v.Set("samplesPerDay", "minute")
	v.Set("publicationState", "adj-or-rep")
	v.Set("dataStartDate", day.Format(dateLayout))
	v.Set("dataDuration", "1")
	return base + "?" + v.Encode()
}

// fileName is the conventional IAGA minute-file name: vss20220115dmin.min
func fileName(station string, day time.Time) string {
	return fmt.Sprintf("%s%sdmin.min", strings.ToLower(station), day.Format("20060102"))
}

func generateDays(start, end time.Time) []time.Time {
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func main() {
	destDir := flag.String("dest", filepath.Join("data", "in", "intermagnet"), "Destination directory")
	baseURL := flag.String("base-url", DefaultBaseURL, "INTERMAGNET GIN webservice base URL")
	station := flag.String("station", "VSS", "IAGA observatory code")
	startDate := flag.String("start", "", "Start date (YYYY-MM-DD)")
	endDate := flag.String("end", "", "End date (YYYY-MM-DD, default: yesterday)")
	workers := flag.Int("workers", 4, "Parallel download workers")
	timeout := flag.Duration("timeout", 60*time.Second, "HTTP timeout per download")
	listOnly := flag.Bool("list", false, "List files without downloading")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "intermagnet-download v%s - INTERMAGNET Minute Data Downloader\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Downloads per-day IAGA-2002 minute files for one observatory.\n\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -station VSS -start 2022-01-01 -end 2022-01-31\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -station VSS -start 2022-01-01 -list\n", os.Args[0])
	}

	flag.Parse()

	if !iaga.ValidStationCode(*station) {
		fmt.Fprintf(os.Stderr, "Error: Invalid station code %q (want 3-4 letters, e.g. VSS)\n", *station)
		os.Exit(1)
	}

	if *startDate == "" {
		fmt.Fprintf(os.Stderr, "Error: -start is required (YYYY-MM-DD)\n")
		os.Exit(1)
	}
	start, err := time.Parse(dateLayout, *startDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid start date. Use YYYY-MM-DD format\n")
		os.Exit(1)
	}

	end := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	if *endDate != "" {
		if end, err = time.Parse(dateLayout, *endDate); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Invalid end date. Use YYYY-MM-DD format\n")
			os.Exit(1)
		}
	}
	if end.Before(start) {
		fmt.Fprintf(os.Stderr, "Error: End date is before start date\n")
		os.Exit(1)
	}

	days := generateDays(start, end)

	if *listOnly {
		fmt.Printf("INTERMAGNET files for %s (%d days):\n\n", strings.ToUpper(*station), len(days))
		for _, d := range days {
			fmt.Printf("  %s\n", requestURL(*baseURL, *station, d))
		}
		return
	}

	fmt.Println("=========================================================")
	fmt.Printf("INTERMAGNET Download v%s\n", Version)
	fmt.Println("=========================================================")
	fmt.Printf("Source:      %s\n", *baseURL)
	fmt.Printf("Station:     %s\n", strings.ToUpper(*station))
	fmt.Printf("Destination: %s\n", *destDir)
	fmt.Printf("Date Range:  %s to %s\n", start.Format(dateLayout), end.Format(dateLayout))
	fmt.Printf("Files:       %d days\n", len(days))
	fmt.Printf("Workers:     %d parallel\n", *workers)
	fmt.Printf("Timeout:     %v per file\n", *timeout)
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()
	stats := &fetch.Stats{}
	client := fetch.NewClient(*timeout)

	sem := make(chan struct{}, *workers)
	var wg sync.WaitGroup

	for _, day := range days {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)

		go func(day time.Time) {
			defer func() { <-sem }()
			defer wg.Done()

			fname := fileName(*station, day)
			destPath := filepath.Join(*destDir, strings.ToUpper(*station),
				fmt.Sprintf("%04d", day.Year()), fname)
			if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
				fmt.Printf("[%s] ERROR: %v\n", fname, err)
				stats.Failed.Add(1)
				return
			}

			skipped, err := fetch.DownloadIfMissing(ctx, client, requestURL(*baseURL, *station, day), destPath, stats)
			switch {
			case err != nil:
				fmt.Printf("[%s] ERROR: %v\n", fname, err)
			case !skipped:
				fmt.Printf("[%s] Downloaded\n", fname)
			}
		}(day)
	}

	wg.Wait()

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
