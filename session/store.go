package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/BaSui01/agentcore/types"
)

// RunRecord is the monotonically updated run-state snapshot.
type RunRecord struct {
	RunID             string    `gorm:"primaryKey;size:64" json:"run_id"`
	SessionID         string    `gorm:"index;size:64" json:"session_id"`
	ThreadID          string    `gorm:"index;size:128" json:"thread_id"`
	Phase             string    `gorm:"size:16" json:"phase"`
	LastEventSequence int64     `json:"last_event_sequence"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// EventRecord is one envelope in the append-only event log.
type EventRecord struct {
	ID        uint      `gorm:"primaryKey"`
	RunID     string    `gorm:"index:idx_run_seq;size:64"`
	Sequence  int64     `gorm:"index:idx_run_seq"`
	Envelope  string    `gorm:"type:text"`
	CreatedAt time.Time
}

// Store persists run records and the event log.
type Store struct {
	db *gorm.DB
}

// OpenStore opens (or creates) a SQLite-backed store at the given path.
// Use ":memory:" for tests.
func OpenStore(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return NewStoreWithDB(db)
}

// NewStoreWithDB wraps an existing gorm connection.
func NewStoreWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&RunRecord{}, &EventRecord{}); err != nil {
		return nil, fmt.Errorf("migrate session store: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveRun upserts the run snapshot.
func (s *Store) SaveRun(run *types.RunState, sessionID string) error {
	record := RunRecord{
		RunID:             run.RunID,
		SessionID:         sessionID,
		ThreadID:          run.ThreadID,
		Phase:             string(run.Phase),
		LastEventSequence: run.EventSequence,
		UpdatedAt:         time.Now(),
	}
	return s.db.Save(&record).Error
}

// GetRun loads one run snapshot.
func (s *Store) GetRun(runID string) (*types.RunState, error) {
	var record RunRecord
	err := s.db.First(&record, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrRunNotFound, "run not found: "+runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	return &types.RunState{
		RunID:         record.RunID,
		SessionID:     record.SessionID,
		ThreadID:      record.ThreadID,
		Phase:         types.RunPhase(record.Phase),
		EventSequence: record.LastEventSequence,
		UpdatedAt:     record.UpdatedAt,
	}, nil
}

// AppendEvent appends one envelope to the run's event log.
func (s *Store) AppendEvent(env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	record := EventRecord{
		RunID:    env.RunID,
		Sequence: env.Sequence,
		Envelope: string(data),
	}
	return s.db.Create(&record).Error
}

// EventsForRun replays the run's envelopes in sequence order.
func (s *Store) EventsForRun(runID string) ([]Envelope, error) {
	var records []EventRecord
	if err := s.db.Where("run_id = ?", runID).Order("sequence asc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	envelopes := make([]Envelope, 0, len(records))
	for _, record := range records {
		var env Envelope
		if err := json.Unmarshal([]byte(record.Envelope), &env); err != nil {
			return nil, fmt.Errorf("decode envelope %d: %w", record.ID, err)
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, nil
}
