// Package memory persists teacher memories: short free-text notes,
// optionally linked to a student, that prime the assistant's prompts.
// Every operation is scoped by teacher id; a memory belonging to
// another teacher is indistinguishable from one that does not exist.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gradeinsight/gradeinsight/internal/observability"
)

var ErrNotFound = errors.New("memory: not found")

type Memory struct {
	ID        int64
	TeacherID int64
	StudentID *int64
	Content   string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt *time.Time
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save stores a memory for the teacher. Tags default to the entity
// heuristic over the content when none are given.
func (s *Store) Save(ctx context.Context, teacherID int64, studentID *int64, content string, tags []string) (Memory, error) {
	if content == "" {
		return Memory{}, fmt.Errorf("memory content is required")
	}
	if len(tags) == 0 {
		tags = ExtractEntities(content)
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return Memory{}, fmt.Errorf("encode tags: %w", err)
	}

	query := `
INSERT INTO teacher_memories (teacher_id, student_id, memory_content, tags)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`
	var m Memory
	if err := s.db.QueryRowContext(ctx, query, teacherID, studentID, content, tagsJSON).
		Scan(&m.ID, &m.CreatedAt); err != nil {
		return Memory{}, fmt.Errorf("save memory: %w", err)
	}
	m.TeacherID = teacherID
	m.StudentID = studentID
	m.Content = content
	m.Tags = tags
	observability.ObserveMemoryOperation("save")
	return m, nil
}

// Recall lists the teacher's memories newest first. A non-empty filter
// matches the content or the linked student's name, case-insensitively.
func (s *Store) Recall(ctx context.Context, teacherID int64, filter string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
SELECT m.id, m.teacher_id, m.student_id, m.memory_content, m.tags, m.created_at, m.updated_at
FROM teacher_memories m
LEFT JOIN students s ON m.student_id = s.id
WHERE m.teacher_id = $1
    AND ($2 = '' OR m.memory_content ILIKE '%' || $2 || '%'
        OR (s.first_name || ' ' || s.last_name) ILIKE '%' || $2 || '%')
ORDER BY m.created_at DESC
LIMIT $3`
	rows, err := s.db.QueryContext(ctx, query, teacherID, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("recall memories: %w", err)
	}
	defer rows.Close()

	memories, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}
	observability.ObserveMemoryOperation("recall")
	return memories, nil
}

// RecallRelevant returns memories likely to matter for the given free
// text: entity tokens are matched against content and tags, and recent
// memories fill the remainder when the entities come up short.
func (s *Store) RecallRelevant(ctx context.Context, teacherID int64, freeText string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 5
	}

	var matched []Memory
	seen := make(map[int64]struct{})
	for _, entity := range ExtractEntities(freeText) {
		if len(matched) >= limit {
			break
		}
		found, err := s.Recall(ctx, teacherID, entity, limit-len(matched))
		if err != nil {
			return nil, err
		}
		for _, m := range found {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
			matched = append(matched, m)
		}
	}

	if len(matched) < limit {
		recent, err := s.Recall(ctx, teacherID, "", limit-len(matched))
		if err != nil {
			return nil, err
		}
		for _, m := range recent {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
			matched = append(matched, m)
		}
	}
	return matched, nil
}

// Update rewrites the content of one of the teacher's memories.
func (s *Store) Update(ctx context.Context, teacherID, id int64, content string) error {
	if content == "" {
		return fmt.Errorf("memory content is required")
	}
	tagsJSON, err := json.Marshal(ExtractEntities(content))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	query := `
UPDATE teacher_memories
SET memory_content = $1, tags = $2, updated_at = now()
WHERE id = $3 AND teacher_id = $4`
	result, err := s.db.ExecContext(ctx, query, content, tagsJSON, id, teacherID)
	if err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	observability.ObserveMemoryOperation("update")
	return nil
}

// Delete removes one of the teacher's memories. A foreign-tenant id
// returns the same ErrNotFound as a missing one.
func (s *Store) Delete(ctx context.Context, teacherID, id int64) error {
	result, err := s.db.ExecContext(ctx, `
DELETE FROM teacher_memories
WHERE id = $1 AND teacher_id = $2`, id, teacherID)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	observability.ObserveMemoryOperation("delete")
	return nil
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	var memories []Memory
	for rows.Next() {
		var (
			m        Memory
			tagsJSON []byte
		)
		if err := rows.Scan(&m.ID, &m.TeacherID, &m.StudentID, &m.Content, &tagsJSON, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		if len(tagsJSON) > 0 {
			if err := json.Unmarshal(tagsJSON, &m.Tags); err != nil {
				return nil, fmt.Errorf("decode tags: %w", err)
			}
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recall memories: %w", err)
	}
	return memories, nil
}
