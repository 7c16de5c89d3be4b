package memory

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestSaveDerivesTagsFromContent(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO teacher_memories (teacher_id, student_id, memory_content, tags)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`)).
		WithArgs(int64(7), nil, "Talked with Maria about her Algebra retake", []byte(`["Talked","Maria","Algebra"]`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), now))

	m, err := store.Save(context.Background(), 7, nil, "Talked with Maria about her Algebra retake", nil)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if m.ID != 11 {
		t.Fatalf("ID = %d, want 11", m.ID)
	}
	if !reflect.DeepEqual(m.Tags, []string{"Talked", "Maria", "Algebra"}) {
		t.Fatalf("Tags = %v", m.Tags)
	}
	assertSQLMock(t, mock)
}

func TestSaveRejectsEmptyContent(t *testing.T) {
	db, _ := newSQLMock(t)
	store := NewStore(db)

	if _, err := store.Save(context.Background(), 7, nil, "", nil); err == nil {
		t.Fatal("Save() accepted empty content")
	}
}

func TestRecallScopesToTeacher(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db)
	now := time.Now().UTC()
	studentID := int64(3)

	mock.ExpectQuery(`SELECT m\.id, m\.teacher_id, m\.student_id, m\.memory_content, m\.tags, m\.created_at, m\.updated_at`).
		WithArgs(int64(7), "maria", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "teacher_id", "student_id", "memory_content", "tags", "created_at", "updated_at"}).
			AddRow(int64(11), int64(7), studentID, "Maria needs a retake", []byte(`["Maria"]`), now, nil))

	memories, err := store.Recall(context.Background(), 7, "maria", 10)
	if err != nil {
		t.Fatalf("Recall() error = %v", err)
	}
	if len(memories) != 1 {
		t.Fatalf("memories = %d, want 1", len(memories))
	}
	if memories[0].TeacherID != 7 {
		t.Fatalf("TeacherID = %d", memories[0].TeacherID)
	}
	if memories[0].StudentID == nil || *memories[0].StudentID != 3 {
		t.Fatalf("StudentID = %v", memories[0].StudentID)
	}
	if !reflect.DeepEqual(memories[0].Tags, []string{"Maria"}) {
		t.Fatalf("Tags = %v", memories[0].Tags)
	}
	assertSQLMock(t, mock)
}

func TestDeleteForeignTenantLooksMissing(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db)

	mock.ExpectExec(`DELETE FROM teacher_memories`).
		WithArgs(int64(11), int64(999)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Delete(context.Background(), 999, 11)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete() error = %v, want ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestUpdateMissingMemory(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db)

	mock.ExpectExec(`UPDATE teacher_memories`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Update(context.Background(), 7, 404, "new content")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update() error = %v, want ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestRecallRelevantFallsBackToRecent(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db)
	now := time.Now().UTC()

	// "Maria" matches one memory; the remainder comes from recency.
	mock.ExpectQuery(`FROM teacher_memories m`).
		WithArgs(int64(7), "Maria", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "teacher_id", "student_id", "memory_content", "tags", "created_at", "updated_at"}).
			AddRow(int64(11), int64(7), nil, "Maria needs a retake", []byte(`["Maria"]`), now, nil))
	mock.ExpectQuery(`FROM teacher_memories m`).
		WithArgs(int64(7), "", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "teacher_id", "student_id", "memory_content", "tags", "created_at", "updated_at"}).
			AddRow(int64(12), int64(7), nil, "Parent night is Thursday", []byte(`[]`), now, nil))

	memories, err := store.RecallRelevant(context.Background(), 7, "How is Maria doing?", 2)
	if err != nil {
		t.Fatalf("RecallRelevant() error = %v", err)
	}
	if len(memories) != 2 {
		t.Fatalf("memories = %d, want 2", len(memories))
	}
	if memories[0].ID != 11 || memories[1].ID != 12 {
		t.Fatalf("order = %d, %d", memories[0].ID, memories[1].ID)
	}
	assertSQLMock(t, mock)
}

func TestExtractEntities(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"How is Maria doing in Algebra?", []string{"Maria", "Algebra"}},
		{"Show me struggling students", nil},
		{"Did John and John turn in Homework 3?", []string{"John", "Homework"}},
		{"the The THE", nil},
		{"", nil},
	}
	for _, tc := range cases {
		got := ExtractEntities(tc.text)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("ExtractEntities(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}
