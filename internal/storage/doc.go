// Package storage provides SQLite-based persistence for tabular datasets
// and the history of index builds over them.
//
// # Database Schema
//
// Tables:
//   - datasets: Named datasets with row counts and timestamps
//   - dataset_columns: Ordered column schema (key and type) per dataset
//   - dataset_rows: One msgpack-encoded row map per row, in dataset order
//   - index_builds: One record per completed index build
//   - schema_version: Applied migrations, compared as semantic versions
//
// Rows are stored as msgpack maps rather than SQL columns so heterogeneous
// values (numbers, strings, timestamps, nil) keep their Go types through a
// save and load.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.tablesearch/tablesearch.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	info, err := db.SaveDataset(ctx, ds)
//	loaded, err := db.LoadDataset(ctx, "patients")
//
// Saving a dataset under an existing name replaces it atomically.
//
// # Existing Tables
//
// LoadTable reads any table of the database as a dataset. Column types come
// from the declared SQL types: integer and floating affinities become number
// columns, DATE/TIME declarations become date columns, everything else is a
// string column.
//
// # Transactions
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	if _, err := tx.SaveDataset(ctx, ds); err != nil {
//	    return err
//	}
//	if err := tx.RecordBuild(ctx, build); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// # Build Tags
//
// Pure Go Build (default or purego tag):
//
//   - Uses modernc.org/sqlite driver
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build -tags "purego"
//
// CGO Build (sqlite_cgo tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Requires C compiler
//
//     CGO_ENABLED=1 go build -tags "sqlite_cgo"
package storage
