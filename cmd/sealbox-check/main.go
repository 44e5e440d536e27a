// sealbox-check is a health probe: it fetches the relay's HTTP status
// endpoint and, when a relay address is given, confirms the QUIC path with a
// ping round-trip.
// Usage: go run ./cmd/sealbox-check -status localhost:8631 -relay localhost:6131
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/SWAI-Ltd/Sealbox/client"
)

type status struct {
	Status    string `json:"status"`
	Users     int    `json:"users"`
	Timestamp string `json:"timestamp"`
}

func main() {
	statusAddr := flag.String("status", "localhost:8631", "status endpoint host:port (empty to skip)")
	relayAddr := flag.String("relay", "", "relay QUIC address to ping (empty to skip)")
	timeout := flag.Duration("timeout", 5*time.Second, "probe timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *statusAddr != "" {
		st, err := fetchStatus(ctx, *statusAddr)
		if err != nil {
			log.Fatalf("status probe failed: %v", err)
		}
		fmt.Printf("status: %s, users: %d, at: %s\n", st.Status, st.Users, st.Timestamp)
	}

	if *relayAddr != "" {
		start := time.Now()
		c, err := client.Dial(ctx, client.Config{RelayAddr: *relayAddr})
		if err != nil {
			log.Fatalf("relay dial failed: %v", err)
		}
		defer c.Close()
		if err := c.Ping(ctx); err != nil {
			log.Fatalf("relay ping failed: %v", err)
		}
		fmt.Printf("relay ping OK (%s)\n", time.Since(start).Round(time.Millisecond))
	}
}

func fetchStatus(ctx context.Context, addr string) (*status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected HTTP status %s", resp.Status)
	}
	var st status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, err
	}
	return &st, nil
}
