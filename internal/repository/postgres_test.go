package repository

import (
	"strings"
	"testing"
)

// Миграции применяются только к живой БД; здесь проверяется их содержимое,
// чтобы каталог точек не оказался пустым на свежей базе.
func TestMigrations_SeedOutlets(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("migrations = %d, want schema and seed", len(entries))
	}

	var all strings.Builder
	for _, e := range entries {
		data, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			t.Fatalf("read migration %s: %v", e.Name(), err)
		}
		if !strings.Contains(string(data), "-- +goose Up") {
			t.Fatalf("migration %s has no goose up marker", e.Name())
		}
		all.Write(data)
	}

	sql := all.String()

	if !strings.Contains(sql, "INSERT INTO outlets") {
		t.Fatalf("no outlet seed found in migrations")
	}

	// Хотя бы одна точка без координат, чтобы путь исключения из подбора
	// был представлен и в реальных данных.
	if !strings.Contains(sql, "NULL, NULL") {
		t.Fatalf("no outlet with unset coordinates in the seed")
	}
}
