package assistant

import "github.com/gradeinsight/gradeinsight/internal/nl2sql"

// SchemaTables is the table context handed to the model when
// generating SQL. It mirrors the migration schema; the guard still
// enforces the allowlist on whatever comes back.
func SchemaTables() []nl2sql.TableContext {
	return []nl2sql.TableContext{
		{TableName: "students", Columns: []string{"id", "teacher_id", "first_name", "last_name", "email"}},
		{TableName: "grades", Columns: []string{"id", "teacher_id", "student_id", "assignment_id", "grade", "upload_id"}},
		{TableName: "assignments", Columns: []string{"id", "teacher_id", "name", "due_date", "max_points", "upload_id"}},
		{TableName: "teacher_notes", Columns: []string{"id", "teacher_id", "student_id", "note", "created_at", "updated_at"}},
		{TableName: "uploads", Columns: []string{"id", "teacher_id", "filename", "uploaded_at"}},
	}
}
