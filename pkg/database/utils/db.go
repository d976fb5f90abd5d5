/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package utils

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tursodatabase/go-libsql"
)

func init() {
	// libsql speaks the same ? placeholders as sqlite3
	sqlx.BindDriver("libsql", sqlx.QUESTION)
}

// DBConfig carries everything needed to open the primary store in
// either local-only or replicated mode.
type DBConfig struct {
	// local-only mode
	Path string

	// replicated mode (remote primary + embedded replica)
	RemoteURL    string
	AuthToken    string
	ReplicaPath  string
	SyncInterval time.Duration

	RequestTimeout time.Duration
}

// LocalOnly reports whether the config lacks a remote primary.
func (c *DBConfig) LocalOnly() bool {
	return c.RemoteURL == "" || c.AuthToken == ""
}

// Syncer pushes pending frames of an embedded replica to/from the
// remote primary. Local-only stores use NoopSyncer.
type Syncer interface {
	Sync() error
}

type NoopSyncer struct{}

func (NoopSyncer) Sync() error { return nil }

type connectorSyncer struct {
	connector *libsql.Connector
}

func (s connectorSyncer) Sync() error {
	_, err := s.connector.Sync()
	return err
}

// ConnectLocal opens a plain sqlite file with WAL journaling. The
// _txlock=immediate option makes every transaction BEGIN IMMEDIATE, the
// write-lock discipline all our mutation paths assume.
func ConnectLocal(path string) (*sqlx.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000&_foreign_keys=on", url.PathEscape(path))
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db %s: %v", path, err)
	}
	// sqlite allows one writer; a single conn avoids SQLITE_BUSY churn
	db.SetMaxOpenConns(1)
	return db, nil
}

// ConnectReplica opens an embedded replica of a remote primary. The
// returned Syncer must be invoked after commits so other processes see
// the write without waiting for the periodic sync.
func ConnectReplica(cfg *DBConfig) (*sqlx.DB, Syncer, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.ReplicaPath), 0o755); err != nil {
		return nil, nil, err
	}
	var opts []libsql.Option
	opts = append(opts, libsql.WithAuthToken(cfg.AuthToken))
	if cfg.SyncInterval > 0 {
		opts = append(opts, libsql.WithSyncInterval(cfg.SyncInterval))
	}
	connector, err := libsql.NewEmbeddedReplicaConnector(cfg.ReplicaPath, cfg.RemoteURL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open embedded replica of %s: %v", cfg.RemoteURL, err)
	}
	db := sqlx.NewDb(sql.OpenDB(connector), "libsql")
	db.SetMaxOpenConns(1)
	return db, connectorSyncer{connector: connector}, nil
}
