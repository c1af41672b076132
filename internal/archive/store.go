package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"proctorhub/internal/config"
	"proctorhub/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS screenshots (
	id TEXT PRIMARY KEY,
	student_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_screenshots_student ON screenshots(student_id, filename);
`

// Store archives screenshot uploads: JPEG files on disk under one directory
// per student, with an index row per file in SQLite. The archive is the only
// durable state in the system; the violation log deliberately is not.
type Store struct {
	db           *sql.DB
	dir          string
	timeout      time.Duration
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	logger       *zap.Logger
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewStore opens the index database and ensures the storage directory and
// schema exist. SQLite runs in WAL mode with a busy timeout; all writes go
// through a single goroutine to avoid write contention.
func NewStore(cfg *config.ArchiveConfig, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}

	store := &Store{
		db:           db,
		dir:          cfg.StorageDir,
		timeout:      cfg.Timeout,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		logger:       logger,
	}

	store.wg.Add(1)
	go store.writeLoop()

	return store, nil
}

// writeLoop processes all index writes in a single goroutine, retrying each
// failed write once before reporting the error.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			err := op.operation(s.db)
			if err != nil {
				s.logger.Warn("archive write failed, retrying", zap.Error(err))
				time.Sleep(time.Second)
				err = op.operation(s.db)
			}
			op.result <- err

		case <-s.shutdown:
			return
		}
	}
}

func (s *Store) executeWrite(operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("archive store is closed")
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(s.timeout):
		return fmt.Errorf("archive write timed out")
	case <-s.shutdown:
		return fmt.Errorf("archive store is shutting down")
	}
}

// SaveScreenshot stores the image bytes on disk and indexes the file. The
// filename is the capture second; a second upload within the same second for
// the same student overwrites the previous file, which is fine for an
// archive sampled every few seconds. The index upserts on (student, filename)
// so an overwritten file keeps exactly one row.
func (s *Store) SaveScreenshot(ctx context.Context, studentID string, data []byte) (types.Screenshot, error) {
	if !types.IsValidStudentID(studentID) {
		return types.Screenshot{}, types.ErrInvalidStudentID
	}

	studentDir := filepath.Join(s.dir, studentID)
	if err := os.MkdirAll(studentDir, 0o755); err != nil {
		return types.Screenshot{}, fmt.Errorf("failed to create student directory: %w", err)
	}

	createdAt := time.Now()
	filename := createdAt.Format("20060102_150405") + ".jpg"
	if err := os.WriteFile(filepath.Join(studentDir, filename), data, 0o644); err != nil {
		return types.Screenshot{}, fmt.Errorf("failed to write screenshot: %w", err)
	}

	shot := types.Screenshot{
		ID:        uuid.New().String(),
		StudentID: studentID,
		Filename:  filename,
		CreatedAt: createdAt,
	}

	err := s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO screenshots (id, student_id, filename, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(student_id, filename) DO UPDATE SET id = excluded.id, created_at = excluded.created_at`,
			shot.ID, shot.StudentID, shot.Filename, shot.CreatedAt)
		return err
	})
	if err != nil {
		return types.Screenshot{}, fmt.Errorf("failed to index screenshot: %w", err)
	}

	s.logger.Info("screenshot archived",
		zap.String("student_id", studentID),
		zap.String("filename", filename))

	return shot, nil
}

// ListScreenshots returns every archived filename grouped by student, each
// student's list sorted by filename (capture order, given the timestamped
// naming).
func (s *Store) ListScreenshots(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id, filename FROM screenshots ORDER BY student_id, filename`)
	if err != nil {
		return nil, fmt.Errorf("failed to list screenshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]string)
	for rows.Next() {
		var studentID, filename string
		if err := rows.Scan(&studentID, &filename); err != nil {
			return nil, fmt.Errorf("failed to scan screenshot row: %w", err)
		}
		out[studentID] = append(out[studentID], filename)
	}

	return out, rows.Err()
}

// HealthCheck verifies the index database responds.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close drains the writer and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	return s.db.Close()
}
