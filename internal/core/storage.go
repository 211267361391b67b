package core

import (
	"fmt"
	"os"

	"tasklist/internal/infra/persistence/memory"
	"tasklist/internal/infra/persistence/postgres"
	"tasklist/internal/infra/persistence/sqlite"
	"tasklist/pkg/domain"
)

// StorageDriver identifies a concrete record store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and parameterises the record store.
type StorageConfig struct {
	Driver      StorageDriver `yaml:"driver"`
	SQLitePath  string        `yaml:"sqlite_path"`
	PostgresDSN string        `yaml:"postgres_dsn"`
}

// StorageConfigFromEnv reads the storage settings from the environment.
// Defaults to sqlite when unset.
//
//	TASKLIST_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	TASKLIST_SQLITE_PATH: path to sqlite file (default ./tasklist.db)
//	TASKLIST_POSTGRES_DSN: postgres DSN when driver=postgres
func StorageConfigFromEnv() StorageConfig {
	return StorageConfig{
		Driver:      StorageDriver(os.Getenv("TASKLIST_STORAGE_DRIVER")),
		SQLitePath:  os.Getenv("TASKLIST_SQLITE_PATH"),
		PostgresDSN: os.Getenv("TASKLIST_POSTGRES_DSN"),
	}
}

// OpenRecordStore constructs the configured backend. The returned closer
// releases any database handle and is never nil.
func OpenRecordStore(cfg StorageConfig) (domain.RecordStore, func() error, error) {
	noClose := func() error { return nil }
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), noClose, nil
	case StorageSQLite:
		s, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, noClose, err
		}
		return s, s.Close, nil
	case StoragePostgres:
		s, err := postgres.NewStore(cfg.PostgresDSN)
		if err != nil {
			return nil, noClose, err
		}
		return s, s.Close, nil
	default:
		return nil, noClose, fmt.Errorf("unknown storage driver %s", driver)
	}
}
