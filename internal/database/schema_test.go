package database

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Feature: shopify-sync, Property: Pending migrations are executed
func TestMigrationFilesExist(t *testing.T) {
	migrationsDir := "../../migrations"

	// Check if migrations directory exists
	if _, err := os.Stat(migrationsDir); os.IsNotExist(err) {
		t.Fatal("Migrations directory does not exist")
	}

	// Expected migration files
	expectedMigrations := []string{
		"00001_create_shops_table.sql",
		"00002_create_products_table.sql",
		"00003_create_variants_table.sql",
		"00004_create_images_table.sql",
	}

	for _, migration := range expectedMigrations {
		path := filepath.Join(migrationsDir, migration)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Errorf("Migration file %s does not exist", migration)
		}
	}
}

func TestMigrationFilesHaveUpAndDown(t *testing.T) {
	migrationsDir := "../../migrations"

	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("Failed to read migrations directory: %v", err)
	}

	sqlFileCount := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		sqlFileCount++
		content, err := os.ReadFile(filepath.Join(migrationsDir, file.Name()))
		if err != nil {
			t.Errorf("Failed to read migration file %s: %v", file.Name(), err)
			continue
		}

		contentStr := string(content)

		if !strings.Contains(contentStr, "-- +goose Up") {
			t.Errorf("Migration file %s missing '-- +goose Up' directive", file.Name())
		}
		if !strings.Contains(contentStr, "-- +goose Down") {
			t.Errorf("Migration file %s missing '-- +goose Down' directive", file.Name())
		}
		if !strings.Contains(contentStr, "-- +goose StatementBegin") {
			t.Errorf("Migration file %s missing '-- +goose StatementBegin' directive", file.Name())
		}
		if !strings.Contains(contentStr, "-- +goose StatementEnd") {
			t.Errorf("Migration file %s missing '-- +goose StatementEnd' directive", file.Name())
		}
	}

	if sqlFileCount == 0 {
		t.Error("No SQL migration files found")
	}
}

func TestMigrationFilesCreateExpectedTables(t *testing.T) {
	migrationsDir := "../../migrations"

	expectedTables := map[string]string{
		"shops":    "00001_create_shops_table.sql",
		"products": "00002_create_products_table.sql",
		"variants": "00003_create_variants_table.sql",
		"images":   "00004_create_images_table.sql",
	}

	for tableName, migrationFile := range expectedTables {
		path := filepath.Join(migrationsDir, migrationFile)
		content, err := os.ReadFile(path)
		if err != nil {
			t.Errorf("Failed to read migration file %s: %v", migrationFile, err)
			continue
		}

		contentStr := string(content)

		createTableStmt := "CREATE TABLE IF NOT EXISTS " + tableName
		if !strings.Contains(contentStr, createTableStmt) {
			t.Errorf("Migration file %s does not create table %s", migrationFile, tableName)
		}

		dropTableStmt := "DROP TABLE IF EXISTS " + tableName
		if !strings.Contains(contentStr, dropTableStmt) {
			t.Errorf("Migration file %s does not drop table %s in down section", migrationFile, tableName)
		}
	}
}

func TestShopsMigrationEnforcesIdentityInvariants(t *testing.T) {
	content, err := os.ReadFile(filepath.Join("../../migrations", "00001_create_shops_table.sql"))
	if err != nil {
		t.Fatalf("Failed to read shops migration: %v", err)
	}

	contentStr := string(content)

	// Each Shopify store maps to exactly one row, whichever identifier
	// the caller arrives with
	uniqueColumns := []string{
		"shopify_shop_id VARCHAR(64) UNIQUE NOT NULL",
		"domain VARCHAR(255) UNIQUE NOT NULL",
		"shopify_domain VARCHAR(255) UNIQUE NOT NULL",
	}
	for _, col := range uniqueColumns {
		if !strings.Contains(contentStr, col) {
			t.Errorf("Shops migration is missing unique column %q", col)
		}
	}
}

func TestProductMigrationEnforcesSyncInvariants(t *testing.T) {
	content, err := os.ReadFile(filepath.Join("../../migrations", "00002_create_products_table.sql"))
	if err != nil {
		t.Fatalf("Failed to read products migration: %v", err)
	}

	contentStr := string(content)

	// The sync upsert relies on (shop_id, shopify_id) being unique
	if !strings.Contains(contentStr, "UNIQUE (shop_id, shopify_id)") {
		t.Error("Products migration is missing the (shop_id, shopify_id) unique constraint")
	}

	// Removing a shop must cascade to its synced catalog
	if !strings.Contains(contentStr, "ON DELETE CASCADE") {
		t.Error("Products migration is missing the shop cascade")
	}
}
