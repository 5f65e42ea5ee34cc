// Package main provides a minimal liveness probe binary for container
// images without a shell. It GETs the target URL and exits 0 on a 2xx
// response, 1 otherwise.
// Usage: healthcheck [url]   (default http://localhost:8080/healthz)
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"
)

const defaultTarget = "http://localhost:8080/healthz"

func main() {
	target := defaultTarget
	if len(os.Args) > 1 {
		target = os.Args[1]
	}

	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		os.Exit(0)
	}

	fmt.Fprintf(os.Stderr, "healthcheck failed: status %d\n", resp.StatusCode)
	os.Exit(1)
}
