package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/datalpia/modelship/pkg/site"
)

// The runtime files pages need, plus the source map for debugging.
var runtimeFiles = append(append([]string(nil), site.RuntimeFiles...), "ort.min.js.map")

func main() {
	var (
		vendorDir = flag.String("dir", "pkg/site/assets/vendor", "vendor directory to populate")
		cdn       = flag.String("cdn", "https://cdn.jsdelivr.net/npm", "npm CDN base URL")
		timeout   = flag.Duration("timeout", 2*time.Minute, "overall download timeout")
	)
	flag.Parse()

	version, err := readVersion(filepath.Join(*vendorDir, "VERSION"))
	if err != nil {
		log.Fatalf("fetch-vendor: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	for _, name := range runtimeFiles {
		url := fmt.Sprintf("%s/onnxruntime-web@%s/dist/%s", strings.TrimRight(*cdn, "/"), version, name)
		dest := filepath.Join(*vendorDir, name)
		if err := download(ctx, url, dest); err != nil {
			log.Fatalf("fetch-vendor: %v", err)
		}
		fmt.Printf("fetched %s\n", dest)
	}
}

// readVersion expects a line of the form "onnxruntime-web <version>".
func readVersion(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	fields := strings.Fields(string(data))
	if len(fields) != 2 || fields[0] != "onnxruntime-web" {
		return "", fmt.Errorf("%s: expected \"onnxruntime-web <version>\"", path)
	}
	return fields[1], nil
}

func download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".fetch-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("download %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
