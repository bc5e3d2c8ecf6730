// Command benchwatch follows one generation or benchmark task on a running
// bench-server until it completes or fails.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dd0wney/cluso-bench/pkg/tasks"
)

func main() {
	server := flag.String("server", envOrDefault("BENCH_SERVER_URL", "http://localhost:8000"), "bench-server base URL")
	interval := flag.Duration("interval", time.Second, "status poll interval")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: benchwatch [flags] <task-id>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	client := &statusClient{
		base: strings.TrimRight(*server, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
	m := newModel(flag.Arg(0), client, *interval)

	final, err := tea.NewProgram(m).Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "benchwatch: %v\n", err)
		os.Exit(1)
	}
	if fm, ok := final.(model); ok && fm.view.Status != tasks.StatusCompleted {
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
