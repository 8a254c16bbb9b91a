package history

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"

	"crashround/internal/game"
)

// Store is the append-only archive of settled rounds. Entries are written
// once at settlement and never mutated; players read them back to verify
// the commit-reveal chain.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres using the same environment variables as the
// database service.
func New(ctx context.Context) (*Store, error) {
	connString := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		getEnv("BLUEPRINT_DB_USERNAME", "postgres"),
		getEnv("BLUEPRINT_DB_PASSWORD", "postgres"),
		getEnv("BLUEPRINT_DB_HOST", "localhost"),
		getEnv("BLUEPRINT_DB_PORT", "5432"),
		getEnv("BLUEPRINT_DB_DATABASE", "crashdb"),
		getEnv("BLUEPRINT_DB_SCHEMA", "public"),
	)
	return NewWithConnString(ctx, connString)
}

func NewWithConnString(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("history: connect: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	log.Println("[HISTORY] Closing round history store")
	s.pool.Close()
}

// Record archives one settled round.
func (s *Store) Record(ctx context.Context, entry game.RoundHistoryEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO round_history
			(round_id, crash_point, server_seed, server_seed_hash, client_seed,
			 started_at, crashed_at, total_bets, total_payout)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.RoundID, entry.CrashPoint, entry.ServerSeed, entry.ServerSeedHash,
		entry.ClientSeed, entry.StartedAt, entry.CrashedAt, entry.TotalBets, entry.TotalPayout,
	)
	if err != nil {
		return fmt.Errorf("history: record round %s: %w", entry.RoundID, err)
	}
	return nil
}

// List returns the newest settled rounds, most recent first.
func (s *Store) List(ctx context.Context, limit int) ([]game.RoundHistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT round_id, crash_point, server_seed, server_seed_hash, client_seed,
		       started_at, crashed_at, total_bets, total_payout
		FROM round_history
		ORDER BY crashed_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var entries []game.RoundHistoryEntry
	for rows.Next() {
		var e game.RoundHistoryEntry
		var startedAt, crashedAt time.Time
		if err := rows.Scan(&e.RoundID, &e.CrashPoint, &e.ServerSeed, &e.ServerSeedHash,
			&e.ClientSeed, &startedAt, &crashedAt, &e.TotalBets, &e.TotalPayout); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.StartedAt = startedAt
		e.CrashedAt = crashedAt
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get fetches a single settled round for fairness verification.
func (s *Store) Get(ctx context.Context, roundID string) (*game.RoundHistoryEntry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT round_id, crash_point, server_seed, server_seed_hash, client_seed,
		       started_at, crashed_at, total_bets, total_payout
		FROM round_history
		WHERE round_id = $1`, roundID)

	var e game.RoundHistoryEntry
	if err := row.Scan(&e.RoundID, &e.CrashPoint, &e.ServerSeed, &e.ServerSeedHash,
		&e.ClientSeed, &e.StartedAt, &e.CrashedAt, &e.TotalBets, &e.TotalPayout); err != nil {
		return nil, fmt.Errorf("history: get round %s: %w", roundID, err)
	}
	return &e, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
