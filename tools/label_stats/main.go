package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/battlelab/matchup/internal/worker"
)

// Prints per-run size, label balance and turn-cap share of the labeled
// examples table.
func main() {
	chURL := os.Getenv("CLICKHOUSE_URL")
	if chURL == "" {
		chURL = "clickhouse://localhost:9000/matchup"
	}
	table := os.Getenv("LABELGEN_TABLE")
	if table == "" {
		table = worker.DefaultExamplesTable
	}

	opts, err := clickhouse.ParseDSN(chURL)
	if err != nil {
		log.Fatalf("Failed to parse DSN: %v", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open connection: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	rows, err := conn.Query(ctx, fmt.Sprintf(`
		SELECT
			run_id,
			count() AS examples,
			avg(label) AS a_win_rate,
			avg(turn_cap) AS capped,
			avg(turns) AS avg_turns,
			min(created_at) AS started
		FROM %s
		GROUP BY run_id
		ORDER BY started DESC
		LIMIT 20
	`, table))
	if err != nil {
		log.Fatal(err)
	}
	defer rows.Close()

	fmt.Printf("%-36s %10s %8s %8s %8s\n", "run", "examples", "A wins", "capped", "turns")
	for rows.Next() {
		var (
			runID                     string
			examples                  uint64
			winRate, capped, avgTurns float64
			started                   time.Time
		)
		if err := rows.Scan(&runID, &examples, &winRate, &capped, &avgTurns, &started); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%-36s %10d %7.1f%% %7.1f%% %8.1f\n", runID, examples, winRate*100, capped*100, avgTurns)
	}
	if err := rows.Err(); err != nil {
		log.Fatal(err)
	}
}
