package parser

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/plot-visualizer/backend/internal/models"
	"github.com/plot-visualizer/backend/internal/timeutil"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of messages buffered before an Appender flush.
const DefaultBatchSize = 20000

// maxMessagesPerQuery caps a single topic query to avoid OOM on huge recordings.
const maxMessagesPerQuery = 500000

// StoreOptions tunes the DuckDB connection.
type StoreOptions struct {
	MemoryLimit string // e.g. "1GB"
	Threads     int
	BatchSize   int
	// Persistent stores keep their file on Close.
	Persistent bool
}

func (o StoreOptions) withDefaults() StoreOptions {
	if o.MemoryLimit == "" {
		o.MemoryLimit = "1GB"
	}
	if o.Threads <= 0 {
		o.Threads = 4
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// TopicStats summarises one topic of a recording.
type TopicStats struct {
	Topic        string `json:"topic"`
	MessageCount int    `json:"messageCount"`
}

// DuckStore stores recorded messages in a DuckDB file so recordings larger
// than RAM can be queried. Payloads are stored as MessagePack blobs.
type DuckStore struct {
	db         *sql.DB
	dbPath     string
	persistent bool
	logger     *zap.Logger

	mu        sync.RWMutex
	count     int
	batchSize int
	batch     []*models.Message
	topics    map[string]int
	minTs     models.Time
	maxTs     models.Time
	lastError error

	// Limits concurrent queries so bursts of plot requests don't spike memory.
	querySem chan struct{}
}

// NewDuckStore creates a temporary store for a session in tempDir.
func NewDuckStore(tempDir, sessionID string, opts StoreOptions, logger *zap.Logger) (*DuckStore, error) {
	dbPath := filepath.Join(tempDir, fmt.Sprintf("session_%s.duckdb", sessionID))
	return NewDuckStoreAtPath(dbPath, opts, logger)
}

// NewDuckStoreAtPath creates a new, empty store at dbPath.
func NewDuckStoreAtPath(dbPath string, opts StoreOptions, logger *zap.Logger) (*DuckStore, error) {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("db", filepath.Base(dbPath)))

	db, err := openDuckDB(dbPath, opts, logger, true)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE messages (
			id           INTEGER PRIMARY KEY,
			topic        VARCHAR NOT NULL,
			receive_sec  BIGINT NOT NULL,
			receive_nsec INTEGER NOT NULL,
			payload      BLOB
		)
	`)
	if err != nil {
		db.Close()
		os.Remove(dbPath)
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	// Indexes are created in Finalize; building them during inserts slows parsing down.

	logger.Debug("message store created")
	return &DuckStore{
		db:         db,
		dbPath:     dbPath,
		persistent: opts.Persistent,
		logger:     logger,
		batchSize:  opts.BatchSize,
		batch:      make([]*models.Message, 0, opts.BatchSize),
		topics:     make(map[string]int),
		querySem:   make(chan struct{}, 3),
	}, nil
}

// OpenDuckStoreReadOnly opens a store previously written with Persistent set.
func OpenDuckStoreReadOnly(dbPath string, opts StoreOptions, logger *zap.Logger) (*DuckStore, error) {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("db", filepath.Base(dbPath)))

	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("opening message store: %w", err)
	}
	db, err := openDuckDB(dbPath+"?access_mode=read_only", opts, logger, false)
	if err != nil {
		return nil, err
	}

	ds := &DuckStore{
		db:         db,
		dbPath:     dbPath,
		persistent: true,
		logger:     logger,
		batchSize:  opts.BatchSize,
		topics:     make(map[string]int),
		querySem:   make(chan struct{}, 3),
	}

	rows, err := db.Query("SELECT topic, COUNT(*) FROM messages GROUP BY topic")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read topics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var topic string
		var n int
		if err := rows.Scan(&topic, &n); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		ds.topics[topic] = n
		ds.count += n
	}

	if ds.count > 0 {
		err = db.QueryRow(`SELECT receive_sec, receive_nsec FROM messages ORDER BY receive_sec, receive_nsec LIMIT 1`).
			Scan(&ds.minTs.Sec, &ds.minTs.Nsec)
		if err == nil {
			err = db.QueryRow(`SELECT receive_sec, receive_nsec FROM messages ORDER BY receive_sec DESC, receive_nsec DESC LIMIT 1`).
				Scan(&ds.maxTs.Sec, &ds.maxTs.Nsec)
		}
		if err != nil {
			// Non-fatal: the store is still queryable without a time range.
			logger.Warn("failed to read time range", zap.Error(err))
		}
	}

	logger.Info("opened existing message store",
		zap.Int("messages", ds.count),
		zap.Int("topics", len(ds.topics)))
	return ds, nil
}

func openDuckDB(dsn string, opts StoreOptions, logger *zap.Logger, strict bool) (*sql.DB, error) {
	connector, err := duckdb.NewConnector(dsn, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit),
			fmt.Sprintf("PRAGMA threads=%d", opts.Threads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				if strict {
					return err
				}
				logger.Warn("pragma failed", zap.String("pragma", pragma), zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

// AddMessage buffers a message for insertion.
func (ds *DuckStore) AddMessage(msg *models.Message) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	ds.batch = append(ds.batch, msg)
	ds.topics[msg.Topic]++

	if ds.count == 0 || timeutil.Compare(msg.ReceiveTime, ds.minTs) < 0 {
		ds.minTs = msg.ReceiveTime
	}
	if ds.count == 0 || timeutil.Compare(msg.ReceiveTime, ds.maxTs) > 0 {
		ds.maxTs = msg.ReceiveTime
	}
	ds.count++

	if len(ds.batch) >= ds.batchSize {
		if err := ds.flushBatchLocked(); err != nil {
			ds.lastError = err
			ds.logger.Error("flush failed", zap.Error(err))
		}
	}
}

// LastError returns the last error that occurred during a batch flush.
func (ds *DuckStore) LastError() error {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.lastError
}

// flushBatchLocked writes the current batch using the native Appender API.
func (ds *DuckStore) flushBatchLocked() error {
	if len(ds.batch) == 0 {
		return nil
	}
	start := time.Now()

	conn, err := ds.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", "messages")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		baseID := ds.count - len(ds.batch)
		for i, msg := range ds.batch {
			payload, err := msgpack.Marshal(msg.Payload)
			if err != nil {
				return fmt.Errorf("failed to encode message %d: %w", baseID+i, err)
			}
			ts := timeutil.Normalize(msg.ReceiveTime)
			if err := appender.AppendRow(
				int32(baseID+i),
				msg.Topic,
				ts.Sec,
				int32(ts.Nsec),
				payload,
			); err != nil {
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	ds.logger.Debug("batch flushed",
		zap.Int("messages", len(ds.batch)),
		zap.Duration("elapsed", time.Since(start)))
	ds.batch = ds.batch[:0]
	return nil
}

// Finalize flushes pending messages and builds the query index.
func (ds *DuckStore) Finalize() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if err := ds.flushBatchLocked(); err != nil {
		return err
	}
	if ds.lastError != nil {
		return fmt.Errorf("earlier flush failed: %w", ds.lastError)
	}

	start := time.Now()
	if _, err := ds.db.Exec("CREATE INDEX idx_topic_ts ON messages(topic, receive_sec, receive_nsec)"); err != nil {
		return fmt.Errorf("idx_topic_ts creation failed: %w", err)
	}
	ds.logger.Debug("store finalized",
		zap.Int("messages", ds.count),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Len returns the number of stored messages.
func (ds *DuckStore) Len() int {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.count
}

// Topics returns per-topic message counts sorted by topic name.
func (ds *DuckStore) Topics() []TopicStats {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	out := make([]TopicStats, 0, len(ds.topics))
	for topic, n := range ds.topics {
		out = append(out, TopicStats{Topic: topic, MessageCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// TimeRange returns the span of receive times, or nil for an empty store.
func (ds *DuckStore) TimeRange() *models.TimeRange {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	if ds.count == 0 {
		return nil
	}
	return &models.TimeRange{Start: ds.minTs, End: ds.maxTs}
}

// Messages returns every message on topic in receive order.
func (ds *DuckStore) Messages(ctx context.Context, topic string) ([]models.Message, error) {
	return ds.query(ctx, `
		SELECT topic, receive_sec, receive_nsec, payload FROM messages
		WHERE topic = ?
		ORDER BY receive_sec, receive_nsec, id
		LIMIT ?`, topic, maxMessagesPerQuery)
}

// MessagesInRange returns messages on topic with start <= receive time <= end.
func (ds *DuckStore) MessagesInRange(ctx context.Context, topic string, tr models.TimeRange) ([]models.Message, error) {
	start, end := timeutil.Normalize(tr.Start), timeutil.Normalize(tr.End)
	return ds.query(ctx, `
		SELECT topic, receive_sec, receive_nsec, payload FROM messages
		WHERE topic = ?
		  AND (receive_sec > ? OR (receive_sec = ? AND receive_nsec >= ?))
		  AND (receive_sec < ? OR (receive_sec = ? AND receive_nsec <= ?))
		ORDER BY receive_sec, receive_nsec, id
		LIMIT ?`,
		topic,
		start.Sec, start.Sec, start.Nsec,
		end.Sec, end.Sec, end.Nsec,
		maxMessagesPerQuery)
}

func (ds *DuckStore) query(ctx context.Context, query string, args ...interface{}) ([]models.Message, error) {
	select {
	case ds.querySem <- struct{}{}:
		defer func() { <-ds.querySem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	rows, err := ds.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0, 256)
	for rows.Next() {
		var msg models.Message
		var nsec int64
		var payload []byte
		if err := rows.Scan(&msg.Topic, &msg.ReceiveTime.Sec, &nsec, &payload); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.ReceiveTime.Nsec = nsec
		if len(payload) > 0 {
			if err := msgpack.Unmarshal(payload, &msg.Payload); err != nil {
				return nil, fmt.Errorf("decoding payload: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	if len(messages) == maxMessagesPerQuery {
		ds.logger.Warn("message query truncated", zap.Int("limit", maxMessagesPerQuery))
	}
	return messages, rows.Err()
}

// Path returns the database file path.
func (ds *DuckStore) Path() string {
	return ds.dbPath
}

// Close closes the database. Temporary stores also delete their file.
func (ds *DuckStore) Close() error {
	var err error
	if ds.db != nil {
		err = ds.db.Close()
	}
	if !ds.persistent && ds.dbPath != "" {
		os.Remove(ds.dbPath)
	}
	return err
}
