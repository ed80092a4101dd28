package main

import (
	"fmt"

	storageflow "github.com/micromdm/nanoflow/dispatch/storage"
	storageflowdiskv "github.com/micromdm/nanoflow/dispatch/storage/diskv"
	storageflowinmem "github.com/micromdm/nanoflow/dispatch/storage/inmem"
	storageflowmysql "github.com/micromdm/nanoflow/dispatch/storage/mysql"
	storageid "github.com/micromdm/nanoflow/subsystem/identity/storage"
	storageiddiskv "github.com/micromdm/nanoflow/subsystem/identity/storage/diskv"
	storageidinmem "github.com/micromdm/nanoflow/subsystem/identity/storage/inmem"
	storageidmysql "github.com/micromdm/nanoflow/subsystem/identity/storage/mysql"

	_ "github.com/go-sql-driver/mysql"
)

type storageConfig struct {
	flow     storageflow.Storage
	identity storageid.Storage
}

// parseStorage configures the flow and identity storage backends.
func parseStorage(name, dsn string) (*storageConfig, error) {
	switch name {
	case "inmem":
		return &storageConfig{
			flow:     storageflowinmem.New(),
			identity: storageidinmem.New(),
		}, nil
	case "file", "diskv":
		if dsn == "" {
			dsn = "db"
		}
		return &storageConfig{
			flow:     storageflowdiskv.New(dsn),
			identity: storageiddiskv.New(dsn),
		}, nil
	case "mysql":
		id, err := storageidmysql.New(storageidmysql.WithDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("creating mysql identity storage: %w", err)
		}
		fl, err := storageflowmysql.New(storageflowmysql.WithDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("creating mysql flow storage: %w", err)
		}
		return &storageConfig{
			flow:     fl,
			identity: id,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage: %s", name)
}
