package database

import (
	"io"
	"log/slog"
	"testing"

	"github.com/jimdaga/newscast/internal/dbtest"
	"github.com/jimdaga/newscast/internal/models"
)

func TestSeedDevDataIsIdempotent(t *testing.T) {
	db := dbtest.Open(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for i := 0; i < 2; i++ {
		if err := SeedDevData(db, logger); err != nil {
			t.Fatalf("SeedDevData() run %d error = %v", i+1, err)
		}
	}

	var users int64
	db.Model(&models.User{}).Where("email = ?", DevUserEmail).Count(&users)
	if users != 1 {
		t.Errorf("users = %d, want 1", users)
	}

	var editions int64
	db.Model(&models.Edition{}).Count(&editions)
	if editions != 1 {
		t.Errorf("editions = %d, want 1", editions)
	}
}

func TestEnsureTimezoneUTC(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"adds timezone", "postgres://u:p@localhost:5432/db", "postgres://u:p@localhost:5432/db?TimeZone=UTC", false},
		{"keeps existing", "postgres://localhost/db?TimeZone=Europe%2FBerlin", "postgres://localhost/db?TimeZone=Europe%2FBerlin", false},
		{"keeps other params", "postgres://localhost/db?sslmode=disable", "postgres://localhost/db?TimeZone=UTC&sslmode=disable", false},
		{"rejects other schemes", "mysql://localhost/db", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ensureTimezoneUTC(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ensureTimezoneUTC() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ensureTimezoneUTC() = %q, want %q", got, tt.want)
			}
		})
	}
}
