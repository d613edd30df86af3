package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/famlingo/internal/model"
)

// QueueStore is the durable offline queue of phrase additions.
type QueueStore struct {
	db *sql.DB
}

func NewQueueStore(db *sql.DB) *QueueStore {
	return &QueueStore{db: db}
}

func (s *QueueStore) Enqueue(memberID, familyID string, p model.Phrase) (*model.QueuedPhrase, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode phrase: %w", err)
	}
	now := time.Now().UTC()
	result, err := s.db.Exec(
		`INSERT INTO phrase_sync_queue (member_id, family_id, phrase, enqueued_at) VALUES (?, ?, ?, ?)`,
		memberID, familyID, string(data), now,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue phrase: %w", err)
	}
	id, _ := result.LastInsertId()
	return &model.QueuedPhrase{ID: id, MemberID: memberID, FamilyID: familyID, Phrase: p, EnqueuedAt: now}, nil
}

// List returns queued items oldest first.
func (s *QueueStore) List() ([]model.QueuedPhrase, error) {
	rows, err := s.db.Query(
		`SELECT id, member_id, family_id, phrase, enqueued_at FROM phrase_sync_queue ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	defer rows.Close()

	var items []model.QueuedPhrase
	for rows.Next() {
		var q model.QueuedPhrase
		var data string
		if err := rows.Scan(&q.ID, &q.MemberID, &q.FamilyID, &data, &q.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("scan queued phrase: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &q.Phrase); err != nil {
			return nil, fmt.Errorf("decode queued phrase: %w", err)
		}
		items = append(items, q)
	}
	return items, rows.Err()
}

func (s *QueueStore) Remove(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM phrase_sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("dequeue %d: %w", id, err)
	}
	return nil
}

func (s *QueueStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM phrase_sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queue: %w", err)
	}
	return n, nil
}
