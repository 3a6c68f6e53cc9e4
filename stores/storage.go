package stores

import (
	"context"
	"docsync-server/config"
	"docsync-server/core"
	"docsync-server/stores/aws"
	"docsync-server/stores/filesystem"
	"docsync-server/stores/memory"
	"docsync-server/stores/sqlite"

	"github.com/sirupsen/logrus"
)

// GetStore builds the persistence gateway selected by STORAGE_TYPE.
func GetStore(ctx context.Context, cfg config.StorageConfig) (core.DocumentStore, error) {
	var (
		store core.DocumentStore
		err   error
	)

	storageField := logrus.Fields{
		"storageType": cfg.Type,
	}

	switch cfg.Type {
	case "filesystem":
		storageField["basePath"] = cfg.LocalPath
		store, err = filesystem.NewDocumentStore(cfg.LocalPath)
	case "sqlite":
		storageField["dataSourceName"] = cfg.DataSourceName
		storageField["cgo"] = sqlite.CGOEnabled
		store, err = sqlite.NewDocumentStore(cfg.DataSourceName)
	case "s3":
		storageField["bucketName"] = cfg.S3Bucket
		store, err = aws.NewDocumentStore(ctx, cfg.S3Bucket, cfg.S3Endpoint)
	default:
		store = memory.NewDocumentStore()
		storageField["storageType"] = "in-memory"
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(storageField).Info("Use storage")
	return store, nil
}
