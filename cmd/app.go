package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mariadb"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/database/sqlite"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/face"
)

// stores bundles the reference and attendance stores of one backend.
type stores struct {
	refs    database.ReferenceWriter
	records database.AttendanceStore
	close   func() error
}

// openStores connects to the configured database backend.
func openStores(cfg *config.Config) (*stores, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		fmt.Println("Connecting to PostgreSQL database...")
		pool, err := postgres.Open(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return &stores{
			refs:    postgres.NewReferenceRepository(pool),
			records: postgres.NewAttendanceRepository(pool),
			close:   pool.Close,
		}, nil
	case config.DriverMySQL:
		fmt.Println("Connecting to MariaDB database...")
		pool, err := mariadb.Open(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MariaDB: %w", err)
		}
		return &stores{
			refs:    mariadb.NewReferenceRepository(pool),
			records: mariadb.NewAttendanceRepository(pool),
			close:   pool.Close,
		}, nil
	case config.DriverSQLite:
		fmt.Printf("Opening SQLite database %s...\n", cfg.Database.URL)
		store, err := sqlite.Open(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite: %w", err)
		}
		return &stores{refs: store, records: store, close: store.Close}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
}

// app holds everything a command needs to run attendance operations.
type app struct {
	cfg      *config.Config
	stores   *stores
	embedder *embedder.Client
	ledger   *attendance.Ledger
	service  *attendance.Service
}

// newApp loads the configuration, applies command-line overrides and wires
// the service over the configured backend.
func newApp(overrides ...func(*config.Config)) (*app, error) {
	cfg := config.Load()
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := openStores(cfg)
	if err != nil {
		return nil, err
	}

	verifier, err := face.NewVerifier(cfg.Verify.Tolerance, cfg.Embedding.Dim)
	if err != nil {
		st.close()
		return nil, fmt.Errorf("invalid VERIFY_TOLERANCE: %w", err)
	}

	emb := embedder.NewClient(embedder.Config{
		URL:          cfg.Embedding.URL,
		Model:        cfg.Embedding.Model,
		MaxImageSize: cfg.Embedding.MaxImageSize,
		Timeout:      cfg.Embedding.Timeout,
	})
	ledger := attendance.NewLedger(st.records)
	svc := attendance.NewService(emb, st.refs, verifier, ledger,
		attendance.WithTimeout(cfg.Attendance.Timeout))

	return &app{cfg: cfg, stores: st, embedder: emb, ledger: ledger, service: svc}, nil
}

// Close releases the database connections.
func (a *app) Close() {
	if err := a.stores.close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: closing database: %v\n", err)
	}
}

// readImageFile reads an image from disk, refusing oversized files.
func readImageFile(path string) ([]byte, error) {
	f, err := os.Open(path) //nolint:gosec // path is a user-supplied CLI argument
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, constants.MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if len(data) > constants.MaxImageBytes {
		return nil, errors.New("image is larger than 20MB")
	}
	return data, nil
}

// describeError renders a service error for the terminal.
func describeError(err error) error {
	if e, ok := attendance.AsError(err); ok {
		if e.Err != nil {
			return fmt.Errorf("%s (%s): %w", e.Message, e.Kind, e.Err)
		}
		return fmt.Errorf("%s (%s)", e.Message, e.Kind)
	}
	return err
}

// outputJSON prints data as indented JSON.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
