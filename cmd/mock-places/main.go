package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/shpitdev/leadfinder/internal/mockplaces"
)

func main() {
	addr := defaultString("MOCK_PLACES_ADDR", ":8081")
	fixtures := defaultString("MOCK_PLACES_FIXTURES", "/data/places.json")
	apiKey := defaultString("MOCK_PLACES_API_KEY", "")
	pageSize := 20

	fs := flag.NewFlagSet("mock-places", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&fixtures, "fixtures", fixtures, "JSON file with queries and details fixtures")
	fs.StringVar(&apiKey, "api-key", apiKey, "Require this key on every request (also supports env: MOCK_PLACES_API_KEY)")
	fs.IntVar(&pageSize, "page-size", pageSize, "Results per Text Search page")
	_ = fs.Parse(os.Args[1:])

	fx, err := mockplaces.LoadFixtures(fixtures)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load fixtures: %v\n", err)
		os.Exit(2)
	}
	srv := mockplaces.New(fx, pageSize)
	srv.RequireKey(apiKey)

	_, _ = fmt.Fprintf(os.Stdout, "mock-places listening on %s (fixtures=%s queries=%d details=%d)\n",
		addr, fixtures, len(fx.Queries), len(fx.Details))
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
