/*
 * This file is part of Hey Raven.
 * Copyright (C) 2025 Hey Raven Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/heyraven/raven-pipeline/internal/logging"
)

// DeadLetter mirrors a single row of a stage's <stream>.dlq stream, kept
// locally so ravenctl can list and replay without re-reading the broker.
type DeadLetter struct {
	ID              int64
	SourceStream    string
	ConsumerGroup   string
	RecordID        string
	RecordType      string
	SessionUID      string
	MeetingID       string
	Fields          map[string]string
	DeliveryCount   int
	LastError       string
	DeadLetteredAt  time.Time
	ReplayedAt      *time.Time
}

// DeadLetterStore handles database operations for the dead-letter mirror.
type DeadLetterStore struct {
	db *Database
}

// NewDeadLetterStore creates a new dead-letter store.
func NewDeadLetterStore(db *Database) *DeadLetterStore {
	return &DeadLetterStore{db: db}
}

// Insert records a dead-lettered record in the mirror.
func (s *DeadLetterStore) Insert(dl *DeadLetter) error {
	fieldsJSON, err := json.Marshal(dl.Fields)
	if err != nil {
		return fmt.Errorf("failed to serialize fields: %w", err)
	}

	query := `
		INSERT INTO dead_letters (
			source_stream, consumer_group, record_id, record_type,
			session_uid, meeting_id, fields_json, delivery_count,
			last_error, dead_lettered_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.DB().Exec(query,
		dl.SourceStream, dl.ConsumerGroup, dl.RecordID, dl.RecordType,
		dl.SessionUID, dl.MeetingID, string(fieldsJSON), dl.DeliveryCount,
		dl.LastError, dl.DeadLetteredAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}

	logging.LogDatabaseOperation("insert", "dead_letters")
	return nil
}

// DeadLetterListOptions filters and paginates the dead-letter mirror.
type DeadLetterListOptions struct {
	SourceStream   string
	ConsumerGroup  string
	SessionUID     string
	OnlyUnreplayed bool
	Limit          int
	Offset         int
}

// List retrieves dead letters matching the given options, newest first.
func (s *DeadLetterStore) List(options DeadLetterListOptions) ([]*DeadLetter, error) {
	query, args := s.buildListQuery(options)

	rows, err := s.db.DB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	var result []*DeadLetter
	for rows.Next() {
		dl, err := s.scanDeadLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		result = append(result, dl)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letters: %w", err)
	}

	return result, nil
}

// GetByID retrieves a single dead letter by its mirror row id.
func (s *DeadLetterStore) GetByID(id int64) (*DeadLetter, error) {
	query := `
		SELECT id, source_stream, consumer_group, record_id, record_type,
			   session_uid, meeting_id, fields_json, delivery_count,
			   last_error, dead_lettered_at, replayed_at
		FROM dead_letters WHERE id = ?`

	row := s.db.DB().QueryRow(query, id)
	return s.scanDeadLetter(row)
}

// MarkReplayed stamps a dead letter as replayed back onto its source stream.
func (s *DeadLetterStore) MarkReplayed(id int64, at time.Time) error {
	result, err := s.db.DB().Exec(
		"UPDATE dead_letters SET replayed_at = ? WHERE id = ?",
		at.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark dead letter replayed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("dead letter not found: %d", id)
	}

	logging.LogDatabaseOperation("update", "dead_letters")
	return nil
}

func (s *DeadLetterStore) buildListQuery(options DeadLetterListOptions) (string, []interface{}) {
	query := `
		SELECT id, source_stream, consumer_group, record_id, record_type,
			   session_uid, meeting_id, fields_json, delivery_count,
			   last_error, dead_lettered_at, replayed_at
		FROM dead_letters WHERE 1=1`

	var args []interface{}

	if options.SourceStream != "" {
		query += " AND source_stream = ?"
		args = append(args, options.SourceStream)
	}

	if options.ConsumerGroup != "" {
		query += " AND consumer_group = ?"
		args = append(args, options.ConsumerGroup)
	}

	if options.SessionUID != "" {
		query += " AND session_uid = ?"
		args = append(args, options.SessionUID)
	}

	if options.OnlyUnreplayed {
		query += " AND replayed_at IS NULL"
	}

	query += " ORDER BY dead_lettered_at DESC"

	if options.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, options.Limit)

		if options.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, options.Offset)
		}
	}

	return query, args
}

func (s *DeadLetterStore) scanDeadLetter(scanner interface {
	Scan(dest ...interface{}) error
}) (*DeadLetter, error) {
	var dl DeadLetter
	var fieldsJSON, deadLetteredAt string
	var replayedAt sql.NullString

	err := scanner.Scan(
		&dl.ID, &dl.SourceStream, &dl.ConsumerGroup, &dl.RecordID, &dl.RecordType,
		&dl.SessionUID, &dl.MeetingID, &fieldsJSON, &dl.DeliveryCount,
		&dl.LastError, &deadLetteredAt, &replayedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("dead letter not found")
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(fieldsJSON), &dl.Fields); err != nil {
		return nil, fmt.Errorf("failed to parse fields_json: %w", err)
	}

	dl.DeadLetteredAt, err = time.Parse(time.RFC3339Nano, deadLetteredAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dead_lettered_at: %w", err)
	}

	if replayedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, replayedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse replayed_at: %w", err)
		}
		dl.ReplayedAt = &t
	}

	return &dl, nil
}
