package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/famlingo/internal/model"
)

// PhraseStore caches each member's custom phrases and standard-phrase
// overrides. Custom phrases list newest first.
type PhraseStore struct {
	db *sql.DB
}

func NewPhraseStore(db *sql.DB) *PhraseStore {
	return &PhraseStore{db: db}
}

func scanPhrase(scanner interface{ Scan(...any) error }) (model.Phrase, error) {
	var data string
	var p model.Phrase
	if err := scanner.Scan(&data); err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return p, fmt.Errorf("decode phrase: %w", err)
	}
	return p, nil
}

func (s *PhraseStore) query(q string, args ...any) ([]model.Phrase, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query phrases: %w", err)
	}
	defer rows.Close()

	phrases := []model.Phrase{}
	for rows.Next() {
		p, err := scanPhrase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan phrase: %w", err)
		}
		phrases = append(phrases, p)
	}
	return phrases, rows.Err()
}

// List returns a member's custom phrases, newest first.
func (s *PhraseStore) List(memberID string) ([]model.Phrase, error) {
	return s.query(`SELECT data FROM custom_phrases WHERE member_id = ? ORDER BY position`, memberID)
}

// All returns every member's custom phrases.
func (s *PhraseStore) All() ([]model.Phrase, error) {
	return s.query(`SELECT data FROM custom_phrases ORDER BY member_id, position`)
}

// Add puts p at the front of the member's list. Re-adding an existing id
// replaces its content in place.
func (s *PhraseStore) Add(memberID string, p model.Phrase) error {
	p.MemberID = memberID
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode phrase: %w", err)
	}

	var minPos int
	err = s.db.QueryRow(
		`SELECT COALESCE(MIN(position), 0) FROM custom_phrases WHERE member_id = ?`, memberID,
	).Scan(&minPos)
	if err != nil {
		return fmt.Errorf("query min position: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO custom_phrases (id, member_id, family_id, position, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(member_id, id) DO UPDATE SET data = excluded.data, family_id = excluded.family_id`,
		p.ID, memberID, p.FamilyID, minPos-1, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert phrase: %w", err)
	}
	return nil
}

func (s *PhraseStore) Remove(memberID, phraseID string) error {
	_, err := s.db.Exec(`DELETE FROM custom_phrases WHERE member_id = ? AND id = ?`, memberID, phraseID)
	if err != nil {
		return fmt.Errorf("delete phrase: %w", err)
	}
	return nil
}

// Replace swaps a member's whole list for phrases, keeping their order.
func (s *PhraseStore) Replace(memberID string, phrases []model.Phrase) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM custom_phrases WHERE member_id = ?`, memberID); err != nil {
		return fmt.Errorf("clear phrases: %w", err)
	}

	now := time.Now().UTC()
	for i, p := range phrases {
		p.MemberID = memberID
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode phrase: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO custom_phrases (id, member_id, family_id, position, data, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(member_id, id) DO NOTHING`,
			p.ID, memberID, p.FamilyID, i, string(data), now,
		)
		if err != nil {
			return fmt.Errorf("insert phrase: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ClearMember drops all cached phrases and overrides of a member.
func (s *PhraseStore) ClearMember(memberID string) error {
	if _, err := s.db.Exec(`DELETE FROM custom_phrases WHERE member_id = ?`, memberID); err != nil {
		return fmt.Errorf("clear phrases: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM phrase_overrides WHERE member_id = ?`, memberID); err != nil {
		return fmt.Errorf("clear overrides: %w", err)
	}
	return nil
}

// SetOverride upserts a member's override, stamping UpdatedAt when unset.
func (s *PhraseStore) SetOverride(o model.PhraseOverride) error {
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode override: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO phrase_overrides (member_id, phrase_id, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(member_id, phrase_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		o.MemberID, o.PhraseID, string(data), o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("set override: %w", err)
	}
	return nil
}

func (s *PhraseStore) DeleteOverride(memberID, phraseID string) error {
	_, err := s.db.Exec(`DELETE FROM phrase_overrides WHERE member_id = ? AND phrase_id = ?`, memberID, phraseID)
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	return nil
}

// Overrides returns a member's overrides keyed by standard phrase id.
func (s *PhraseStore) Overrides(memberID string) (map[string]model.PhraseOverride, error) {
	rows, err := s.db.Query(`SELECT data FROM phrase_overrides WHERE member_id = ?`, memberID)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.PhraseOverride)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		var o model.PhraseOverride
		if err := json.Unmarshal([]byte(data), &o); err != nil {
			return nil, fmt.Errorf("decode override: %w", err)
		}
		out[o.PhraseID] = o
	}
	return out, rows.Err()
}
