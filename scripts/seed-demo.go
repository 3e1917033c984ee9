// Seeds a running server with demo prospects so the map and list views
// have something to show.
//
// Usage:
//
//	API_URL=http://localhost:8080 SESSION_TOKEN=<token> go run scripts/seed-demo.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

type prospectSeed struct {
	Name         string   `json:"name"`
	Phone        string   `json:"phone,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	Address      string   `json:"address,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	WantsBaptism bool     `json:"wantsBaptism"`
}

func ptr(f float64) *float64 { return &f }

var seeds = []prospectSeed{
	{
		Name:      "Lucas Ferreira",
		Phone:     "555-0101",
		Notes:     "Met at the street fair. Asked unprompted about what happens after death and wanted a Bible.",
		Latitude:  ptr(-23.5505),
		Longitude: ptr(-46.6333),
	},
	{
		Name:    "Rosa Mendes",
		Notes:   "Friendly but guarded. Said she used to attend church as a child.",
		Address: "Rua das Flores 42",
	},
	{
		Name:         "Daniel Okafor",
		Phone:        "555-0144",
		Notes:        "Long conversation about purpose. Asked about baptism before we finished.",
		WantsBaptism: true,
	},
}

func main() {
	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	token := strings.TrimSpace(os.Getenv("SESSION_TOKEN"))
	if token == "" {
		fmt.Println("SESSION_TOKEN is required: sign in and export the token first")
		os.Exit(1)
	}

	fmt.Printf("Seeding demo prospects\n")
	fmt.Printf("API URL: %s\n\n", apiURL)

	ctx := context.Background()
	client := &http.Client{Timeout: 30 * time.Second}

	for _, seed := range seeds {
		payload, err := json.Marshal(seed)
		if err != nil {
			fmt.Printf("  error marshaling %s: %v\n", seed.Name, err)
			continue
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/api/prospects/", bytes.NewReader(payload))
		if err != nil {
			fmt.Printf("  error creating request: %v\n", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := client.Do(req)
		if err != nil {
			fmt.Printf("  error posting %s: %v\n", seed.Name, err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			fmt.Printf("  %s: server returned %d\n", seed.Name, resp.StatusCode)
			continue
		}
		fmt.Printf("  created %s\n", seed.Name)
	}

	fmt.Println("\nDone.")
}
