package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Store is the append-only event/alert/log persistence layer described by
// the event store contract: it ensures the schema and indices exist, then
// serializes writers while letting readers proceed in parallel.
type Store struct {
	db *gorm.DB
	// writeMu serializes writers, keeping batch inserts from interleaving
	// with single-row alert/log appends.
	writeMu sync.Mutex
}

// Open ensures path's directory exists and is writable, opens (creating if
// absent) the schema, applies pending additive migrations and ensures the
// (ts) and (type, ts) indices. Subsequent opens of the same path are no-ops
// beyond the idempotent schema/index statements.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: directory %s is not writable: %w", dir, err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: failed to open %s: %w", path, err)
	}

	if err := db.AutoMigrate(&Event{}, &Alert{}, &Log{}); err != nil {
		return nil, fmt.Errorf("store: schema migration failed for %s: %w", path, err)
	}

	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, fmt.Errorf("store: failed to attach tracing plugin: %w", err)
	}

	// WAL lets readers (detector ticks, SSE pollers) proceed while a writer
	// holds the connection; busy_timeout absorbs the rare contention.
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA busy_timeout=5000;")
	db.Exec("PRAGMA synchronous=NORMAL;")

	s := &Store{db: db}
	if err := s.migrateRSNColumns(); err != nil {
		return nil, fmt.Errorf("store: required migration failed: %w", err)
	}
	if err := s.ensureIndices(); err != nil {
		// Index creation failures are not fatal: the error is discarded and
		// the store opens without the explicit indices.
		return s, nil
	}
	return s, nil
}

// migrateRSNColumns additively migrates the event table: if it lacks
// rsn_akms/rsn_ciphers, add them as nullable text. A failure to introspect
// is tolerated; a failure to apply is fatal.
func (s *Store) migrateRSNColumns() error {
	m := s.db.Migrator()
	hasAKMs := m.HasColumn(&Event{}, "rsn_akms")
	hasCiphers := m.HasColumn(&Event{}, "rsn_ciphers")

	if !hasAKMs {
		if err := m.AddColumn(&Event{}, "rsn_akms"); err != nil {
			return fmt.Errorf("adding event.rsn_akms: %w", err)
		}
	}
	if !hasCiphers {
		if err := m.AddColumn(&Event{}, "rsn_ciphers"); err != nil {
			return fmt.Errorf("adding event.rsn_ciphers: %w", err)
		}
	}
	return nil
}

func (s *Store) ensureIndices() error {
	if err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_event_ts ON event(ts)").Error; err != nil {
		return err
	}
	return s.db.Exec("CREATE INDEX IF NOT EXISTS idx_event_type_ts ON event(type, ts)").Error
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AppendEvents bulk-inserts a batch of events all-or-nothing and returns the
// ids assigned, in the same order as the input slice.
func (s *Store) AppendEvents(batch []Event) ([]int64, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.db.CreateInBatches(batch, 500).Error; err != nil {
		return nil, fmt.Errorf("store: append %d events: %w", len(batch), err)
	}

	ids := make([]int64, len(batch))
	for i := range batch {
		ids[i] = batch[i].ID
	}
	return ids, nil
}

// AppendAlert inserts a single alert row.
func (s *Store) AppendAlert(a *Alert) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.db.Create(a).Error; err != nil {
		return fmt.Errorf("store: append alert: %w", err)
	}
	return nil
}

// AppendLog inserts a single log row.
func (s *Store) AppendLog(l *Log) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.db.Create(l).Error; err != nil {
		return fmt.Errorf("store: append log: %w", err)
	}
	return nil
}

// QueryEvents returns events with ts >= sinceTs, optionally filtered by
// exact type and/or SSID, newest-last, bounded by limit.
func (s *Store) QueryEvents(sinceTs time.Time, typeFilter, ssidFilter string, limit int) ([]Event, error) {
	q := s.db.Where("ts >= ?", sinceTs).Order("id asc")
	if typeFilter != "" {
		q = q.Where("type = ?", typeFilter)
	}
	if ssidFilter != "" {
		q = q.Where("ssid = ?", ssidFilter)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var events []Event
	if err := q.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("store: query events: %w", err)
	}
	return events, nil
}

// DeauthCounts is the result of CountDeauthsBySrc: per-source counts and
// the grand total over the window.
type DeauthCounts struct {
	BySrc []SrcCount
	Total int
}

// SrcCount pairs a source MAC with its deauth count within the window.
type SrcCount struct {
	Src   string
	Count int
}

// CountDeauthsBySrc counts mgmt.deauth events with ts >= sinceTs grouped by
// source MAC, using the (type, ts) index.
func (s *Store) CountDeauthsBySrc(sinceTs time.Time) (DeauthCounts, error) {
	var rows []SrcCount
	err := s.db.Model(&Event{}).
		Select("src as src, count(*) as count").
		Where("type = ? AND ts >= ? AND src IS NOT NULL", "mgmt.deauth", sinceTs).
		Group("src").
		Find(&rows).Error
	if err != nil {
		return DeauthCounts{}, fmt.Errorf("store: count deauths by src: %w", err)
	}

	total := 0
	for _, r := range rows {
		total += r.Count
	}
	return DeauthCounts{BySrc: rows, Total: total}, nil
}

// EventsByKeyset is a helper for SSE-style watermark polling: events with
// id strictly greater than afterID, ascending.
func (s *Store) EventsByKeyset(afterID int64, limit int) ([]Event, error) {
	q := s.db.Where("id > ?", afterID).Order("id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var events []Event
	if err := q.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("store: events after %d: %w", afterID, err)
	}
	return events, nil
}

// QueryLogsBySource returns log rows whose Source exactly matches source,
// oldest first. Used by operational tooling and tests that need to assert
// a specific diagnostic was recorded.
func (s *Store) QueryLogsBySource(source string, limit int) ([]Log, error) {
	q := s.db.Where("source = ?", source).Order("id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var logs []Log
	if err := q.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("store: query logs by source %s: %w", source, err)
	}
	return logs, nil
}

// AlertsByKeyset mirrors EventsByKeyset for the alert stream.
func (s *Store) AlertsByKeyset(afterID int64, limit int) ([]Alert, error) {
	q := s.db.Where("id > ?", afterID).Order("id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var alerts []Alert
	if err := q.Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("store: alerts after %d: %w", afterID, err)
	}
	return alerts, nil
}

// AcknowledgeAlert flips the Acknowledged flag on a single alert. It never
// touches any other field, preserving the append-only invariant.
func (s *Store) AcknowledgeAlert(id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Model(&Alert{}).Where("id = ?", id).
		Update("acknowledged", true).Error
}
