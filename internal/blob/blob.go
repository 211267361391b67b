// Package blob opens the configured object store and writes task list
// archives into it.
package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"tasklist/internal/blob/core"
	"tasklist/internal/infra/blob/fs"
	"tasklist/internal/infra/blob/memory"
	"tasklist/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// Info describes stored object metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// Config selects and parameterises the blob backend.
type Config struct {
	Driver Driver    `yaml:"driver"`
	FSRoot string    `yaml:"fs_root"`
	S3     s3.Config `yaml:"s3"`
}

// ConfigFromEnv reads the blob settings from the environment.
//
//	TASKLIST_BLOB_DRIVER: fs|s3|memory (default fs)
//	TASKLIST_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	TASKLIST_BLOB_S3_BUCKET, TASKLIST_BLOB_S3_REGION, TASKLIST_BLOB_S3_ENDPOINT,
//	TASKLIST_BLOB_S3_PATH_STYLE, TASKLIST_BLOB_S3_ACCESS_KEY_ID,
//	TASKLIST_BLOB_S3_SECRET_ACCESS_KEY
func ConfigFromEnv() Config {
	return Config{
		Driver: Driver(os.Getenv("TASKLIST_BLOB_DRIVER")),
		FSRoot: os.Getenv("TASKLIST_BLOB_FS_ROOT"),
		S3: s3.Config{
			Bucket:          os.Getenv("TASKLIST_BLOB_S3_BUCKET"),
			Region:          os.Getenv("TASKLIST_BLOB_S3_REGION"),
			Endpoint:        os.Getenv("TASKLIST_BLOB_S3_ENDPOINT"),
			PathStyle:       strings.EqualFold(os.Getenv("TASKLIST_BLOB_S3_PATH_STYLE"), "true"),
			AccessKeyID:     os.Getenv("TASKLIST_BLOB_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("TASKLIST_BLOB_S3_SECRET_ACCESS_KEY"),
		},
	}
}

// Open constructs the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = core.DriverFilesystem
	}
	switch driver {
	case core.DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case core.DriverS3:
		return s3.New(ctx, cfg.S3)
	case core.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
