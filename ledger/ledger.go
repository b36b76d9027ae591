// Package ledger records what the reaper last knew and decided about
// each instance, backed by bbolt with an in-memory btree index. It is
// bookkeeping for the report command, not a source of truth: the
// instance tags on the cloud side always win.
package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/yairfalse/reaper/types"
)

// Bucket names in bbolt
var (
	bucketInstances = []byte("instances")
	bucketSweeps    = []byte("sweeps")
	bucketMeta      = []byte("meta")
)

var keyCurrentRev = []byte("current_rev")

// Record is the last known lifecycle state of one instance.
type Record struct {
	InstanceID string       `json:"instance_id"`
	Action     string       `json:"action"`
	Reason     types.Reason `json:"reason,omitempty"`
	Expiry     time.Time    `json:"expiry,omitempty"`
	DryRun     bool         `json:"dry_run"`
	SweepRev   int64        `json:"sweep_rev"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// SweepSummary is the stored outcome of one sweep run.
type SweepSummary struct {
	Rev        int64     `json:"rev"`
	StartedAt  time.Time `json:"started_at"`
	Duration   float64   `json:"duration_seconds"`
	Scanned    int       `json:"scanned"`
	Terminated int       `json:"terminated"`
	Anomalous  int       `json:"anomalous"`
	Failed     int       `json:"failed"`
	LiveMode   bool      `json:"live_mode"`
}

// Ledger is bbolt-backed storage with a btree index ordered by
// instance ID.
type Ledger struct {
	mu         sync.RWMutex
	index      *btree.BTreeG[*Record]
	db         *bbolt.DB
	currentRev int64
}

func recordLess(a, b *Record) bool {
	return a.InstanceID < b.InstanceID
}

// Open opens or creates the ledger file and rebuilds the index.
func Open(path string) (*Ledger, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	l := &Ledger{
		index: btree.NewG(32, recordLess),
		db:    db,
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketInstances, bucketSweeps, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		if rev := tx.Bucket(bucketMeta).Get(keyCurrentRev); rev != nil {
			l.currentRev = int64(binary.BigEndian.Uint64(rev))
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}

	if err := l.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// BeginSweep allocates the next sweep revision.
func (l *Ledger) BeginSweep() (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rev := l.currentRev + 1
	err := l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyCurrentRev, encodeRev(rev))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to advance sweep revision: %w", err)
	}
	l.currentRev = rev
	return rev, nil
}

// CurrentRev returns the latest sweep revision.
func (l *Ledger) CurrentRev() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.currentRev
}

// RecordDecision persists the outcome for one instance.
func (l *Ledger) RecordDecision(rev int64, decision types.Decision, expiry time.Time, dryRun bool) error {
	record := &Record{
		InstanceID: decision.InstanceID,
		Action:     decision.Action,
		Reason:     decision.Reason,
		Expiry:     expiry,
		DryRun:     dryRun,
		SweepRev:   rev,
		UpdatedAt:  time.Now(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	err = l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketInstances).Put([]byte(record.InstanceID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}

	l.mu.Lock()
	l.index.ReplaceOrInsert(record)
	l.mu.Unlock()
	return nil
}

// RecordSweep persists the summary of one sweep run.
func (l *Ledger) RecordSweep(summary SweepSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal sweep summary: %w", err)
	}
	err = l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSweeps).Put(encodeRev(summary.Rev), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store sweep summary: %w", err)
	}
	return nil
}

// Get returns the record for one instance.
func (l *Ledger) Get(instanceID string) (*Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	record, ok := l.index.Get(&Record{InstanceID: instanceID})
	if !ok {
		return nil, false
	}
	copied := *record
	return &copied, true
}

// List returns all records ordered by instance ID.
func (l *Ledger) List() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	records := make([]Record, 0, l.index.Len())
	l.index.Ascend(func(record *Record) bool {
		records = append(records, *record)
		return true
	})
	return records
}

// ExpiringBefore returns records whose expiry is known and falls before
// the cutoff, ordered by instance ID.
func (l *Ledger) ExpiringBefore(cutoff time.Time) []Record {
	var records []Record
	for _, record := range l.List() {
		if !record.Expiry.IsZero() && record.Expiry.Before(cutoff) {
			records = append(records, record)
		}
	}
	return records
}

// Sweeps returns the stored sweep summaries, newest last.
func (l *Ledger) Sweeps() ([]SweepSummary, error) {
	var summaries []SweepSummary
	err := l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSweeps).ForEach(func(_, value []byte) error {
			var summary SweepSummary
			if err := json.Unmarshal(value, &summary); err != nil {
				return err
			}
			summaries = append(summaries, summary)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read sweep summaries: %w", err)
	}
	return summaries, nil
}

// rebuildIndex loads every instance record into the btree.
func (l *Ledger) rebuildIndex() error {
	return l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketInstances).ForEach(func(_, value []byte) error {
			var record Record
			if err := json.Unmarshal(value, &record); err != nil {
				return fmt.Errorf("failed to parse record: %w", err)
			}
			l.index.ReplaceOrInsert(&record)
			return nil
		})
	})
}

func encodeRev(rev int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(rev))
	return buf
}
