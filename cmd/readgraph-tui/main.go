package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rmax-ai/readgraph/pkg/client"
)

func main() {
	endpoint := flag.String("endpoint", envOr("READGRAPH_ENDPOINT", client.DefaultEndpoint), "readgraphd base URL")
	refresh := flag.Duration("refresh", 5*time.Second, "poll interval")
	flag.Parse()

	p := tea.NewProgram(initialModel(client.NewClient(*endpoint), *refresh), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
