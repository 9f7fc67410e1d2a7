// gfz-download - Downloader for the GFZ Potsdam Kp/ap/Ap/SN/F10.7 dataset
//
// The upstream dataset is one flat file covering 1932 to present, refreshed
// daily. The file is always re-downloaded: new days are appended upstream
// and recent preliminary values get revised.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/gfz-download ./cmd/gfz-download

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
	"github.com/viventriglia/scintill-ai/internal/gfz"
)

// Version can be overridden at build time via -ldflags
var Version = "1.2.0"

func main() {
	destDir := flag.String("dest", filepath.Join("data", "in", "gfz"), "Destination directory")
	timeout := flag.Duration("timeout", 2*time.Minute, "HTTP timeout")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "gfz-download v%s - GFZ Geomagnetic Index Downloader\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Downloads the daily Kp/ap/Ap/SN/F10.7 dataset from GFZ Potsdam.\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	fmt.Println("=========================================================")
	fmt.Printf("GFZ Download v%s\n", Version)
	fmt.Println("=========================================================")
	fmt.Printf("Source:      %s\n", gfz.FileURL)
	fmt.Printf("Destination: %s\n", *destDir)
	fmt.Println()

	if err := os.MkdirAll(*destDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Cannot create directory: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()
	client := fetch.NewClient(*timeout)

	destPath := filepath.Join(*destDir, gfz.FileName)
	n, err := fetch.Download(ctx, client, gfz.FileURL, destPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Downloaded %s (%.2f MB) in %v\n",
		gfz.FileName, float64(n)/1024/1024, time.Since(startTime).Round(time.Millisecond))
}
