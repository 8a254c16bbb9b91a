package history

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"crashround/internal/game"
)

var testStore *Store

func mustStartPostgresContainer() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	var (
		dbName = "historydb"
		dbPwd  = "password"
		dbUser = "user"
	)

	// Create context with timeout to prevent hanging
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbContainer, err := postgres.Run(
		ctx,
		"postgres:latest",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	dbHost, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, err
	}

	dbPort, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, err
	}

	connString := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		dbUser, dbPwd, dbHost, dbPort.Port(), dbName)

	testStore, err = NewWithConnString(context.Background(), connString)
	if err != nil {
		return dbContainer.Terminate, err
	}

	if err := createSchema(context.Background()); err != nil {
		return dbContainer.Terminate, err
	}

	return dbContainer.Terminate, nil
}

// createSchema mirrors migrations/000001_create_round_history.up.sql.
func createSchema(ctx context.Context) error {
	_, err := testStore.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS round_history (
			round_id         TEXT PRIMARY KEY,
			crash_point      NUMERIC(12, 2) NOT NULL CHECK (crash_point >= 1.00),
			server_seed      TEXT NOT NULL,
			server_seed_hash TEXT NOT NULL,
			client_seed      TEXT NOT NULL DEFAULT '',
			started_at       TIMESTAMPTZ NOT NULL,
			crashed_at       TIMESTAMPTZ NOT NULL,
			total_bets       NUMERIC(14, 2) NOT NULL DEFAULT 0,
			total_payout     NUMERIC(14, 2) NOT NULL DEFAULT 0
		)`)
	return err
}

func TestMain(m *testing.M) {
	// Skip integration tests if SKIP_INTEGRATION env var is set
	if os.Getenv("SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}

	// Skip if Docker is not available
	if os.Getenv("CI") == "" && !isDockerAvailable() {
		os.Exit(0)
	}

	teardown, err := mustStartPostgresContainer()
	if err != nil {
		// Don't fail, just skip tests if container can't start
		os.Exit(0)
	}

	code := m.Run()

	if testStore != nil {
		testStore.Close()
	}
	if teardown != nil {
		teardown(context.Background())
	}

	os.Exit(code)
}

func isDockerAvailable() (available bool) {
	// testcontainers panics (rather than returning an error) when no Docker
	// host can be found at all; treat that as "not available".
	defer func() {
		if recover() != nil {
			available = false
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.DaemonHost(ctx)
	return err == nil
}

func sampleEntry(roundID string, crashPoint float64, crashedAt time.Time) game.RoundHistoryEntry {
	return game.RoundHistoryEntry{
		RoundID:        roundID,
		CrashPoint:     crashPoint,
		ServerSeed:     "seed-" + roundID,
		ServerSeedHash: "hash-" + roundID,
		ClientSeed:     "client-" + roundID,
		StartedAt:      crashedAt.Add(-10 * time.Second),
		CrashedAt:      crashedAt,
		TotalBets:      150,
		TotalPayout:    90,
	}
}

func TestRecordAndGet(t *testing.T) {
	ctx := context.Background()

	entry := sampleEntry("round-get", 2.47, time.Now().UTC().Truncate(time.Millisecond))
	if err := testStore.Record(ctx, entry); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := testStore.Get(ctx, "round-get")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got.RoundID != entry.RoundID {
		t.Errorf("round_id = %s, want %s", got.RoundID, entry.RoundID)
	}
	if got.CrashPoint != entry.CrashPoint {
		t.Errorf("crash_point = %.2f, want %.2f", got.CrashPoint, entry.CrashPoint)
	}
	if got.ServerSeed != entry.ServerSeed {
		t.Errorf("server_seed = %s, want %s", got.ServerSeed, entry.ServerSeed)
	}
	if got.ServerSeedHash != entry.ServerSeedHash {
		t.Errorf("server_seed_hash = %s, want %s", got.ServerSeedHash, entry.ServerSeedHash)
	}
	if got.ClientSeed != entry.ClientSeed {
		t.Errorf("client_seed = %s, want %s", got.ClientSeed, entry.ClientSeed)
	}
	if got.TotalBets != entry.TotalBets {
		t.Errorf("total_bets = %.2f, want %.2f", got.TotalBets, entry.TotalBets)
	}
	if got.TotalPayout != entry.TotalPayout {
		t.Errorf("total_payout = %.2f, want %.2f", got.TotalPayout, entry.TotalPayout)
	}
}

func TestGetMissingRound(t *testing.T) {
	_, err := testStore.Get(context.Background(), "round-does-not-exist")
	if err == nil {
		t.Fatal("expected error for missing round")
	}
}

func TestRecordDuplicateRoundFails(t *testing.T) {
	ctx := context.Background()

	entry := sampleEntry("round-dup", 1.73, time.Now().UTC())
	if err := testStore.Record(ctx, entry); err != nil {
		t.Fatalf("first Record failed: %v", err)
	}
	if err := testStore.Record(ctx, entry); err == nil {
		t.Fatal("expected primary key violation on duplicate round_id")
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()

	base := time.Now().UTC().Add(time.Hour)
	for i := 0; i < 5; i++ {
		entry := sampleEntry(fmt.Sprintf("round-list-%d", i), 1.50+float64(i), base.Add(time.Duration(i)*time.Second))
		if err := testStore.Record(ctx, entry); err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
	}

	entries, err := testStore.List(ctx, 3)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	// The list rounds were stamped an hour in the future, so they must
	// lead the listing, newest first.
	if entries[0].RoundID != "round-list-4" {
		t.Errorf("entries[0] = %s, want round-list-4", entries[0].RoundID)
	}
	if entries[1].RoundID != "round-list-3" {
		t.Errorf("entries[1] = %s, want round-list-3", entries[1].RoundID)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].CrashedAt.After(entries[i-1].CrashedAt) {
			t.Errorf("entries not ordered newest first at index %d", i)
		}
	}
}

func TestListClampsLimit(t *testing.T) {
	ctx := context.Background()

	// Non-positive limits fall back to the default of 20; with fewer rows
	// than that everything comes back.
	entries, err := testStore.List(ctx, -1)
	if err != nil {
		t.Fatalf("List(-1) failed: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected rows from earlier tests")
	}

	// Oversized limits clamp to 100, not to the default. Backfill past the
	// cap with old rounds so the newest-first tests above stay unaffected.
	base := time.Now().UTC().Add(-24 * time.Hour)
	for i := 0; i < 105; i++ {
		entry := sampleEntry(fmt.Sprintf("round-cap-%d", i), 1.25, base.Add(time.Duration(i)*time.Second))
		if err := testStore.Record(ctx, entry); err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
	}

	entries, err = testStore.List(ctx, 1000)
	if err != nil {
		t.Fatalf("List(1000) failed: %v", err)
	}
	if len(entries) != 100 {
		t.Errorf("List(1000) returned %d rows, want the 100-row cap", len(entries))
	}
}
