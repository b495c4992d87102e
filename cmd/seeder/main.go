package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/battlelab/matchup/internal/models"
	"github.com/battlelab/matchup/internal/store"
)

// Config
const (
	API_URL = "http://localhost:8080/api/v1/predict"
)

func power(p int) *int { return &p }

var (
	tackle   = models.Move{ID: 33, Name: "Tackle", Type: models.TypeNormal, Category: models.CategoryPhysical, Power: power(40), Accuracy: 100}
	growl    = models.Move{ID: 45, Name: "Growl", Type: models.TypeNormal, Category: models.CategoryStatus, Accuracy: 100}
	surf     = models.Move{ID: 57, Name: "Surf", Type: models.TypeWater, Category: models.CategorySpecial, Power: power(90), Accuracy: 100}
	flame    = models.Move{ID: 53, Name: "Flamethrower", Type: models.TypeFire, Category: models.CategorySpecial, Power: power(90), Accuracy: 100}
	razor    = models.Move{ID: 75, Name: "Razor Leaf", Type: models.TypeGrass, Category: models.CategoryPhysical, Power: power(55), Accuracy: 95}
	rockfall = models.Move{ID: 157, Name: "Rock Slide", Type: models.TypeRock, Category: models.CategoryPhysical, Power: power(75), Accuracy: 90}
	quick    = models.Move{ID: 98, Name: "Quick Attack", Type: models.TypeNormal, Category: models.CategoryPhysical, Power: power(40), Accuracy: 100, Priority: 1}
)

var roster = []models.Combatant{
	{ID: "tidal", Name: "Tidal", Stats: models.Stats{HP: 79, Attack: 83, Defense: 100, SpAttack: 85, SpDefense: 105, Speed: 78},
		Types: []models.Type{models.TypeWater}, Moves: []models.Move{tackle, surf, growl}},
	{ID: "ember", Name: "Ember", Stats: models.Stats{HP: 78, Attack: 84, Defense: 78, SpAttack: 109, SpDefense: 85, Speed: 100},
		Types: []models.Type{models.TypeFire, models.TypeFlying}, Moves: []models.Move{flame, quick}},
	{ID: "thicket", Name: "Thicket", Stats: models.Stats{HP: 80, Attack: 82, Defense: 83, SpAttack: 100, SpDefense: 100, Speed: 80},
		Types: []models.Type{models.TypeGrass, models.TypePoison}, Moves: []models.Move{razor, tackle, growl}},
	{ID: "bedrock", Name: "Bedrock", Stats: models.Stats{HP: 80, Attack: 120, Defense: 130, SpAttack: 55, SpDefense: 65, Speed: 45},
		Types: []models.Type{models.TypeRock, models.TypeGround}, Moves: []models.Move{rockfall, tackle}},
}

func main() {
	ctx := context.Background()

	if pgURL := os.Getenv("POSTGRES_URL"); pgURL != "" {
		pg, err := pgxpool.New(ctx, pgURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pg.Close()

		rs := store.NewRosterStore(pg)
		if err := rs.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to create roster schema: %v", err)
		}
		for _, c := range roster {
			if err := rs.SaveCombatant(ctx, c); err != nil {
				log.Fatalf("Failed to seed %s: %v", c.ID, err)
			}
		}
		fmt.Printf("Seeded %d combatants\n", len(roster))
	}

	// Ask the API for Tidal's best move against Ember.
	req := map[string]interface{}{
		"attacker":   roster[0],
		"defender":   roster[1],
		"candidates": roster[0].Moves,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		log.Fatalf("Failed to marshal JSON: %v", err)
	}

	httpReq, err := http.NewRequest("POST", API_URL, bytes.NewBuffer(payload))
	if err != nil {
		log.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		log.Fatalf("Failed to send request: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("Status: %s\n", resp.Status)
	fmt.Printf("Response: %s\n", string(body))

	if resp.StatusCode == http.StatusOK {
		fmt.Println("✅ Prediction Successful!")
	} else {
		fmt.Println("❌ Prediction Failed!")
	}
}
