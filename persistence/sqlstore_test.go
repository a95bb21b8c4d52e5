package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/wfunc/crosskey/models"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "audit.db")
	store, err := NewSQLStore(context.Background(), DialectSQLite, dsn)
	if err != nil {
		t.Fatalf("NewSQLStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLStore_SaveAndCount(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Now()

	events := []models.RoomEvent{
		{Code: "ABCDEF", Kind: models.EventCreated, ConnID: "c1", Role: "pc", Members: 1, CreatedAt: now},
		{Code: "ABCDEF", Kind: models.EventJoined, ConnID: "c2", Role: "mobile", Members: 2, CreatedAt: now},
		{Code: "ABCDEF", Kind: models.EventPaired, Members: 2},
		{Code: "ZZZZZZ", Kind: models.EventJoined, ConnID: "c3", Role: "pc", Members: 1, CreatedAt: now},
	}
	if err := store.SaveRoomEvents(ctx, events); err != nil {
		t.Fatalf("SaveRoomEvents failed: %v", err)
	}

	n, err := store.CountRoomEvents(ctx, "ABCDEF")
	if err != nil {
		t.Fatalf("CountRoomEvents failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 events for ABCDEF, got %d", n)
	}

	total, err := store.CountRoomEvents(ctx, "")
	if err != nil {
		t.Fatalf("CountRoomEvents failed: %v", err)
	}
	if total != 4 {
		t.Errorf("Expected 4 events in total, got %d", total)
	}
}

func TestSQLStore_EmptyBatch(t *testing.T) {
	store := newSQLiteStore(t)
	if err := store.SaveRoomEvents(context.Background(), nil); err != nil {
		t.Errorf("Empty batch should be a no-op, got %v", err)
	}
}

func TestSQLStore_SchemaIsIdempotent(t *testing.T) {
	store := newSQLiteStore(t)
	if err := store.initTables(context.Background()); err != nil {
		t.Errorf("Re-running the schema should succeed: %v", err)
	}
}

func TestSQLStore_Placeholders(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	if got := pg.placeholders(3); got != "$1, $2, $3" {
		t.Errorf("postgres placeholders = %q", got)
	}
	lite := &SQLStore{dialect: DialectSQLite}
	if got := lite.placeholders(2); got != "?, ?" {
		t.Errorf("sqlite placeholders = %q", got)
	}
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, Options{}); !errors.Is(err, ErrDisabled) {
		t.Errorf("Empty driver should be disabled, got %v", err)
	}
	if _, err := Open(ctx, Options{Driver: "mysql"}); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("Expected ErrUnknownDriver, got %v", err)
	}

	store, err := Open(ctx, Options{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "open.db")})
	if err != nil {
		t.Fatalf("Open sqlite failed: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*SQLStore); !ok {
		t.Errorf("sqlite driver should yield *SQLStore, got %T", store)
	}
}

func TestOptions_PostgresDSN(t *testing.T) {
	opts := Options{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "crosskey"}
	want := "host=db port=5432 user=u password=p dbname=crosskey sslmode=disable"
	if got := opts.postgresDSN(); got != want {
		t.Errorf("postgresDSN() = %q, want %q", got, want)
	}
	opts.DSN = "postgres://x"
	if got := opts.postgresDSN(); got != "postgres://x" {
		t.Errorf("Explicit DSN should win, got %q", got)
	}
}
