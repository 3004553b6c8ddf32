package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

func TestOpenStores_SQLite(t *testing.T) {
	cfg := config.Defaults()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.URL = filepath.Join(t.TempDir(), "attendance.db")

	st, err := openStores(cfg)
	if err != nil {
		t.Fatalf("openStores() failed: %v", err)
	}
	defer st.close()

	recs, err := st.records.ListRecords(context.Background(), "")
	if err != nil {
		t.Fatalf("ListRecords() failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected empty database, got %d records", len(recs))
	}
}

func TestOpenStores_UnsupportedDriver(t *testing.T) {
	cfg := config.Defaults()
	cfg.Database.Driver = "oracle"

	if _, err := openStores(cfg); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestNewApp_Overrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "attendance.db"))

	a, err := newApp(func(cfg *config.Config) { cfg.Web.Port = 9191 })
	if err != nil {
		t.Fatalf("newApp() failed: %v", err)
	}
	defer a.Close()

	if a.cfg.Web.Port != 9191 {
		t.Errorf("expected override port 9191, got %d", a.cfg.Web.Port)
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "")

	if _, err := newApp(); err == nil {
		t.Error("expected error without DATABASE_URL")
	}
}

func TestReadImageFile(t *testing.T) {
	dir := t.TempDir()

	small := filepath.Join(dir, "small.jpg")
	if err := os.WriteFile(small, []byte("jpeg"), 0o600); err != nil {
		t.Fatal(err)
	}
	data, err := readImageFile(small)
	if err != nil || string(data) != "jpeg" {
		t.Errorf("readImageFile() = %q, %v", data, err)
	}

	large := filepath.Join(dir, "large.jpg")
	if err := os.WriteFile(large, make([]byte, constants.MaxImageBytes+1), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := readImageFile(large); err == nil {
		t.Error("expected error for oversized image")
	}

	if _, err := readImageFile(filepath.Join(dir, "missing.jpg")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDescribeError(t *testing.T) {
	err := describeError(&attendance.Error{
		Kind:    attendance.KindNoOpenSession,
		Message: "no check-in record found for today",
	})
	if err.Error() != "no check-in record found for today (no_open_session)" {
		t.Errorf("unexpected message %q", err.Error())
	}

	cause := errors.New("connection refused")
	err = describeError(&attendance.Error{Kind: attendance.KindStoreUnavailable, Message: "storage unavailable", Err: cause})
	if !errors.Is(err, cause) || !strings.Contains(err.Error(), "store_unavailable") {
		t.Errorf("expected wrapped cause, got %v", err)
	}
}
