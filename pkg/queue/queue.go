/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

// Package queue is the durable task queue. It lives in its own local
// sqlite database regardless of the primary store's mode, keeping
// hot-write contention away from billing and surviving primary
// outages.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"k8s.io/klog/v2"

	dbutils "github.com/PoetCoderJun/video-auto-cut/pkg/database/utils"
	"github.com/PoetCoderJun/video-auto-cut/pkg/utils/jsonutil"
	"github.com/PoetCoderJun/video-auto-cut/pkg/utils/timeutil"
)

const TPQueueTasks = "queue_tasks"

// Task types.
const (
	TaskTypeStep1 = "STEP1"
	TaskTypeStep2 = "STEP2"
)

// Task statuses. QUEUED and RUNNING are the live ones; a (job_id,
// task_type) pair never holds more than one live row.
const (
	StatusQueued    = "QUEUED"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// Task is one queue row. Payload is decoded from payload_json.
type Task struct {
	TaskID       int64          `db:"task_id"`
	JobID        string         `db:"job_id"`
	TaskType     string         `db:"task_type"`
	Status       string         `db:"status"`
	PayloadJSON  string         `db:"payload_json"`
	ErrorMessage sql.NullString `db:"error_message"`
	WorkerID     sql.NullString `db:"worker_id"`
	CreatedAt    string         `db:"created_at"`
	UpdatedAt    string         `db:"updated_at"`
	StartedAt    sql.NullString `db:"started_at"`
	FinishedAt   sql.NullString `db:"finished_at"`
}

// Payload decodes payload_json, tolerating junk rows.
func (t *Task) Payload() map[string]interface{} {
	payload := map[string]interface{}{}
	if t.PayloadJSON != "" {
		if err := jsonutil.UnmarshalLenient([]byte(t.PayloadJSON), &payload); err != nil {
			klog.Warningf("task %d carries undecodable payload, ignoring: %v", t.TaskID, err)
			return map[string]interface{}{}
		}
	}
	return payload
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ` + TPQueueTasks + ` (
		task_id       INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id        TEXT NOT NULL,
		task_type     TEXT NOT NULL,
		status        TEXT NOT NULL,
		payload_json  TEXT NOT NULL DEFAULT '{}',
		error_message TEXT,
		worker_id     TEXT,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL,
		started_at    TEXT,
		finished_at   TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_tasks_status_task_id ON ` + TPQueueTasks + ` (status, task_id ASC)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_tasks_job_type_status ON ` + TPQueueTasks + ` (job_id, task_type, status, task_id DESC)`,
}

const (
	selectLiveTaskQuery = `SELECT task_id FROM ` + TPQueueTasks + `
		WHERE job_id = ? AND task_type = ? AND status IN (?, ?)
		ORDER BY task_id DESC LIMIT 1`
	insertTaskQuery = `INSERT INTO ` + TPQueueTasks + ` (job_id, task_type, status, payload_json, error_message, worker_id, created_at, updated_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, NULL, NULL, ?, ?, NULL, NULL)`
	selectNextQueuedQuery = `SELECT task_id FROM ` + TPQueueTasks + `
		WHERE status = ? ORDER BY task_id ASC LIMIT 1`
	claimTaskQuery = `UPDATE ` + TPQueueTasks + `
		SET status = ?, worker_id = ?, started_at = COALESCE(started_at, ?), updated_at = ?, error_message = NULL
		WHERE task_id = ? AND status = ?`
	selectTaskQuery      = `SELECT * FROM ` + TPQueueTasks + ` WHERE task_id = ? LIMIT 1`
	finishTaskQuery      = `UPDATE ` + TPQueueTasks + ` SET status = ?, finished_at = ?, updated_at = ?, error_message = ? WHERE task_id = ?`
	countLivePerJobQuery = `SELECT COUNT(*) FROM ` + TPQueueTasks + ` WHERE job_id = ? AND task_type = ? AND status IN (?, ?)`
)

// Queue wraps the queue database. Safe for concurrent use across
// processes; claim arbitration happens in SQL.
type Queue struct {
	db       *sqlx.DB
	workerID string
}

// DBFileName is the queue database file under the work directory.
const DBFileName = "local_task_queue.db"

// Open opens (and bootstraps) the queue database under workDir.
func Open(workDir string) (*Queue, error) {
	db, err := dbutils.ConnectLocal(filepath.Join(workDir, DBFileName))
	if err != nil {
		return nil, err
	}
	q := NewWithDB(db)
	if err := q.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return q, nil
}

// NewWithDB wraps an existing connection; tests use this.
func NewWithDB(db *sqlx.DB) *Queue {
	return &Queue{db: db, workerID: fmt.Sprintf("pid-%d", os.Getpid())}
}

func (q *Queue) ensureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := q.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to bootstrap queue schema: %v", err)
		}
	}
	return nil
}

func (q *Queue) Close() error { return q.db.Close() }

// Enqueue inserts a QUEUED row, coalescing on (job_id, task_type,
// live status): if a QUEUED or RUNNING row already exists its task_id
// is returned and nothing is inserted.
func (q *Queue) Enqueue(ctx context.Context, jobID, taskType string, payload map[string]interface{}) (int64, error) {
	if taskType != TaskTypeStep1 && taskType != TaskTypeStep2 {
		return 0, fmt.Errorf("unsupported task type: %s", taskType)
	}
	payloadJSON := "{}"
	if len(payload) > 0 {
		payloadJSON = string(jsonutil.MarshalSilently(payload))
	}

	var taskID int64
	err := q.withTx(ctx, func(tx *sqlx.Tx) error {
		var existing int64
		err := tx.GetContext(ctx, &existing, selectLiveTaskQuery, jobID, taskType, StatusQueued, StatusRunning)
		if err == nil {
			taskID = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to probe live task: %v", err)
		}

		now := timeutil.NowISO()
		res, err := tx.ExecContext(ctx, insertTaskQuery, jobID, taskType, StatusQueued, payloadJSON, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert task: %v", err)
		}
		taskID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return taskID, nil
}

// ClaimNext atomically claims the oldest QUEUED task. A lost race is
// retried up to three times before giving up with (nil, nil); nil is
// also returned when the queue is empty.
func (q *Queue) ClaimNext(ctx context.Context) (*Task, error) {
	for attempt := 0; attempt < 3; attempt++ {
		task, retry, err := q.tryClaim(ctx)
		if err != nil {
			return nil, err
		}
		if !retry {
			return task, nil
		}
	}
	return nil, nil
}

func (q *Queue) tryClaim(ctx context.Context) (task *Task, retry bool, err error) {
	err = q.withTx(ctx, func(tx *sqlx.Tx) error {
		var taskID int64
		getErr := tx.GetContext(ctx, &taskID, selectNextQueuedQuery, StatusQueued)
		if errors.Is(getErr, sql.ErrNoRows) {
			return nil // queue empty
		}
		if getErr != nil {
			return fmt.Errorf("failed to select next queued task: %v", getErr)
		}

		now := timeutil.NowISO()
		res, execErr := tx.ExecContext(ctx, claimTaskQuery, StatusRunning, q.workerID, now, now, taskID, StatusQueued)
		if execErr != nil {
			return fmt.Errorf("failed to claim task %d: %v", taskID, execErr)
		}
		affected, raErr := res.RowsAffected()
		if raErr != nil {
			return raErr
		}
		if affected == 0 {
			// another worker won; roll back and retry
			retry = true
			return errLostRace
		}

		var claimed Task
		if getErr := tx.GetContext(ctx, &claimed, selectTaskQuery, taskID); getErr != nil {
			return fmt.Errorf("failed to reload claimed task %d: %v", taskID, getErr)
		}
		task = &claimed
		return nil
	})
	if errors.Is(err, errLostRace) {
		return nil, true, nil
	}
	return task, false, err
}

var errLostRace = errors.New("task claim lost race")

// SetSucceeded marks the task SUCCEEDED and clears its error.
func (q *Queue) SetSucceeded(ctx context.Context, taskID int64) error {
	now := timeutil.NowISO()
	if _, err := q.db.ExecContext(ctx, finishTaskQuery, StatusSucceeded, now, now, nil, taskID); err != nil {
		return fmt.Errorf("failed to mark task %d succeeded: %v", taskID, err)
	}
	return nil
}

// SetFailed marks the task FAILED, keeping the raw error text in the
// row for operators. The job-facing message is written elsewhere.
func (q *Queue) SetFailed(ctx context.Context, taskID int64, errorMessage string) error {
	now := timeutil.NowISO()
	if _, err := q.db.ExecContext(ctx, finishTaskQuery, StatusFailed, now, now, errorMessage, taskID); err != nil {
		return fmt.Errorf("failed to mark task %d failed: %v", taskID, err)
	}
	return nil
}

// HasPending reports whether a live row exists for the pair.
func (q *Queue) HasPending(ctx context.Context, jobID, taskType string) (bool, error) {
	var count int
	if err := q.db.GetContext(ctx, &count, countLivePerJobQuery, jobID, taskType, StatusQueued, StatusRunning); err != nil {
		return false, fmt.Errorf("failed to count live tasks: %v", err)
	}
	return count > 0, nil
}

// GetTask loads one row by id; nil when absent.
func (q *Queue) GetTask(ctx context.Context, taskID int64) (*Task, error) {
	var task Task
	err := q.db.GetContext(ctx, &task, selectTaskQuery, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select task %d: %v", taskID, err)
	}
	return &task, nil
}

func (q *Queue) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := q.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			klog.ErrorS(rbErr, "queue rollback failed")
		}
		return err
	}
	return tx.Commit()
}
