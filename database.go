package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/schollz/sqlite3dump"
	"golang.org/x/sync/singleflight"
)

type database struct {
	db       *sql.DB
	dumpFile string
	debug    bool
	a        *goSocial
	// Prepared statement cache
	stmts   map[string]*sql.Stmt
	stmtsMu sync.Mutex
	sg      singleflight.Group
}

func (a *goSocial) initDatabase() error {
	if a.db != nil {
		return nil
	}
	db, err := a.openDatabase(a.cfg.Db.File)
	if err != nil {
		return err
	}
	a.db = db
	a.shutdown.Add(func() {
		_ = db.close()
		a.info("Closed database")
	})
	if a.cfg.Db.DumpFile != "" {
		db.dump(a.cfg.Db.DumpFile)
	}
	return nil
}

func (a *goSocial) openDatabase(file string) (*database, error) {
	if dir := filepath.Dir(file); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", file+"?mode=rwc&_journal_mode=WAL&_busy_timeout=100&cache=shared")
	if err != nil {
		return nil, err
	}
	// Single writer connection keeps SQLite serialization simple
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, err
	}
	if err = migrateDb(db); err != nil {
		return nil, err
	}
	return &database{
		db:       db,
		dumpFile: a.cfg.Db.DumpFile,
		debug:    a.cfg.Db.Debug,
		a:        a,
		stmts:    map[string]*sql.Stmt{},
	}, nil
}

func (db *database) close() error {
	db.vacuum()
	return db.db.Close()
}

func (db *database) vacuum() {
	_, _ = db.exec("VACUUM")
}

func (db *database) dump(file string) {
	f, err := os.Create(file)
	if err != nil {
		db.a.error("Failed to dump database", "err", err)
		return
	}
	defer f.Close()
	if err = sqlite3dump.DumpDB(db.db, f); err != nil {
		db.a.error("Failed to dump database", "err", err)
	}
}

func (db *database) prepare(query string) (*sql.Stmt, error) {
	stmt, err, _ := db.sg.Do(query, func() (any, error) {
		db.stmtsMu.Lock()
		defer db.stmtsMu.Unlock()
		if stmt, ok := db.stmts[query]; ok && stmt != nil {
			return stmt, nil
		}
		stmt, err := db.db.Prepare(query)
		if err != nil {
			return nil, err
		}
		db.stmts[query] = stmt
		return stmt, nil
	})
	if err != nil {
		return nil, err
	}
	return stmt.(*sql.Stmt), nil
}

func (db *database) exec(query string, args ...any) (sql.Result, error) {
	return db.execContext(context.Background(), query, args...)
}

func (db *database) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if db.debug {
		db.a.debug("sql exec", "query", query)
	}
	stmt, err := db.prepare(query)
	if err != nil {
		return nil, err
	}
	return stmt.ExecContext(ctx, args...)
}

func (db *database) query(query string, args ...any) (*sql.Rows, error) {
	return db.queryContext(context.Background(), query, args...)
}

func (db *database) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if db.debug {
		db.a.debug("sql query", "query", query)
	}
	stmt, err := db.prepare(query)
	if err != nil {
		return nil, err
	}
	return stmt.QueryContext(ctx, args...)
}

func (db *database) queryRow(query string, args ...any) (*sql.Row, error) {
	return db.queryRowContext(context.Background(), query, args...)
}

func (db *database) queryRowContext(ctx context.Context, query string, args ...any) (*sql.Row, error) {
	if db.debug {
		db.a.debug("sql query row", "query", query)
	}
	stmt, err := db.prepare(query)
	if err != nil {
		return nil, err
	}
	return stmt.QueryRowContext(ctx, args...), nil
}
