package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// SchemaVersion is written into every snapshot. Snapshots without a version
// predate it and are read as version 1.
const SchemaVersion = 1

const (
	keyPrefix   = "testProgress_"
	RedirectKey = "redirectAfterLogin"
)

var (
	ErrUnsupportedVersion = errors.New("unsupported progress snapshot version")
	ErrInvalidSnapshot    = errors.New("invalid progress snapshot")
)

// Snapshot is the persisted, resumable part of a session.
type Snapshot struct {
	Version         int            `json:"version"`
	TestID          int            `json:"testId"`
	Answers         map[int]string `json:"answers"`
	MarkedQuestions []int          `json:"markedQuestions"`
	Timestamp       time.Time      `json:"timestamp"`
}

// Store persists at most one snapshot per test plus the login bookmark.
// Load returns nil, nil when there is nothing stored.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, testID int) (*Snapshot, error)
	Clear(ctx context.Context, testID int) error
	SetRedirect(ctx context.Context, path string) error
	Redirect(ctx context.Context) (string, error)
	ClearRedirect(ctx context.Context) error
	Close() error
}

func Key(testID int) string {
	return keyPrefix + strconv.Itoa(testID)
}

// Recoverable reports whether the snapshot is young enough to offer.
func (s *Snapshot) Recoverable(now time.Time, window time.Duration) bool {
	if s == nil {
		return false
	}
	return now.Sub(s.Timestamp) < window
}

func encodeSnapshot(snap Snapshot) ([]byte, error) {
	if snap.TestID <= 0 {
		return nil, fmt.Errorf("%w: test id is required", ErrInvalidSnapshot)
	}
	snap.Version = SchemaVersion
	if snap.Answers == nil {
		snap.Answers = map[int]string{}
	}
	marked := append([]int(nil), snap.MarkedQuestions...)
	sort.Ints(marked)
	if marked == nil {
		marked = []int{}
	}
	snap.MarkedQuestions = marked
	snap.Timestamp = snap.Timestamp.UTC()

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot for test %d: %w", snap.TestID, err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if snap.Version == 0 {
		snap.Version = 1
	}
	if snap.Version > SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, snap.Version)
	}
	if snap.Answers == nil {
		snap.Answers = map[int]string{}
	}
	return &snap, nil
}
