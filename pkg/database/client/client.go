/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

// Package client is the primary-store access layer: users, coupon
// codes, and the credit ledger. Job content never lives here.
package client

import (
	"context"
	"sync"

	"github.com/jmoiron/sqlx"
	"k8s.io/klog/v2"

	"github.com/PoetCoderJun/video-auto-cut/pkg/config"
	"github.com/PoetCoderJun/video-auto-cut/pkg/database/utils"
)

var (
	once     sync.Once
	instance *Client
)

// Client wraps the primary store connection. In replicated mode every
// committed transaction is pushed to the remote primary via Sync.
type Client struct {
	db     *sqlx.DB
	syncer utils.Syncer
}

// NewClient returns the process-wide client, opening the store on
// first use according to configuration.
func NewClient() *Client {
	once.Do(func() {
		cfg := &utils.DBConfig{
			Path:           config.GetDBPath(),
			RemoteURL:      config.GetTursoDatabaseURL(),
			AuthToken:      config.GetTursoAuthToken(),
			ReplicaPath:    config.GetTursoLocalReplicaPath(),
			SyncInterval:   config.GetTursoSyncInterval(),
			RequestTimeout: config.GetDBRequestTimeout(),
		}
		var (
			db     *sqlx.DB
			syncer utils.Syncer = utils.NoopSyncer{}
			err    error
		)
		if config.IsDBLocalOnly() || cfg.LocalOnly() {
			db, err = utils.ConnectLocal(cfg.Path)
		} else {
			db, syncer, err = utils.ConnectReplica(cfg)
		}
		if err != nil {
			klog.ErrorS(err, "failed to open primary store")
			return
		}
		c := &Client{db: db, syncer: syncer}
		if err := c.EnsureSchema(context.Background()); err != nil {
			klog.ErrorS(err, "failed to ensure primary store schema")
			return
		}
		instance = c
		klog.Infof("primary store ready, local_only=%v", config.IsDBLocalOnly() || cfg.LocalOnly())
	})
	return instance
}

// NewClientWithDB builds a client over an existing connection. Tests
// use it with a throwaway sqlite file.
func NewClientWithDB(db *sqlx.DB) *Client {
	return &Client{db: db, syncer: utils.NoopSyncer{}}
}

func (c *Client) DB() *sqlx.DB { return c.db }

// Sync flushes the embedded replica to the remote primary. No-op in
// local-only mode.
func (c *Client) Sync() error { return c.syncer.Sync() }

// WithTx runs fn in one transaction, then syncs the replica. The
// local driver opens transactions with BEGIN IMMEDIATE (DSN option),
// so writers serialize up front instead of failing at commit. The
// libsql embedded-replica driver has no such DSN knob and begins
// DEFERRED; there the single-connection pool (SetMaxOpenConns(1))
// serializes writers in-process, and remote write conflicts surface
// at Commit as retriable errors.
func (c *Client) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			klog.ErrorS(rbErr, "rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if err := c.Sync(); err != nil {
		klog.ErrorS(err, "replica sync after commit failed")
	}
	return nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
