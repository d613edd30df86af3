package remote

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/famlingo/internal/model"
)

// AppVersion is written into every snapshot this build pushes.
const AppVersion = "0.1.0"

// NewSnapshot builds the blob pushed after a merge. Users mirrors the
// family's member list.
func NewSnapshot(family *model.Family, phrases []model.Phrase, now time.Time) *model.Snapshot {
	f := family.Clone()
	if f == nil {
		f = &model.Family{}
	}
	if f.Users == nil {
		f.Users = []model.Member{}
	}
	return &model.Snapshot{
		Version:    model.SnapshotVersion,
		AppVersion: AppVersion,
		LastSync:   model.Timestamp(now),
		Family:     f,
		Users:      f.Users,
		Phrases:    phrases,
	}
}

// Encode renders a snapshot as indented UTF-8 JSON.
func Encode(s *model.Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a fetched object into a snapshot carrying its revision.
func Decode(obj *Object) (*model.Snapshot, error) {
	var s model.Snapshot
	if err := json.Unmarshal(obj.Content, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %v: %w", err, model.ErrInvalid)
	}
	s.Revision = obj.Revision
	return &s, nil
}
