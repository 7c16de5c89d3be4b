package quickquery

const strugglingStudentsSQL = `
SELECT
    s.id,
    s.first_name,
    s.last_name,
    s.email,
    ROUND(AVG(CASE WHEN g.grade IS NOT NULL AND a.max_points > 0 THEN (g.grade / a.max_points * 100) END)::numeric, 1) AS avg_grade,
    COUNT(*) FILTER (WHERE g.grade IS NULL) AS missing_count,
    COUNT(a.id) AS total_assignments,
    tn.note AS teacher_note
FROM students s
LEFT JOIN grades g ON s.id = g.student_id AND g.teacher_id = $1
LEFT JOIN assignments a ON g.assignment_id = a.id AND a.teacher_id = $1
LEFT JOIN teacher_notes tn ON s.id = tn.student_id AND tn.teacher_id = $1
WHERE EXISTS (
    SELECT 1 FROM grades g2
    WHERE g2.student_id = s.id AND g2.teacher_id = $1
)
GROUP BY s.id, s.first_name, s.last_name, s.email, tn.note
HAVING AVG(CASE WHEN g.grade IS NOT NULL AND a.max_points > 0 THEN (g.grade / a.max_points * 100) END) < $2
    OR COUNT(*) FILTER (WHERE g.grade IS NULL) > 3
ORDER BY avg_grade ASC NULLS LAST, missing_count DESC
LIMIT 50`

const studentDetailSQL = `
SELECT
    s.id AS student_id,
    s.first_name,
    s.last_name,
    s.email,
    a.id AS assignment_id,
    a.name AS assignment_name,
    a.due_date,
    a.max_points,
    g.grade,
    CASE
        WHEN g.grade IS NULL THEN NULL
        WHEN a.max_points > 0 THEN ROUND((g.grade / a.max_points * 100)::numeric, 1)
    END AS percentage,
    tn.note AS teacher_note,
    tn.updated_at AS note_updated
FROM students s
LEFT JOIN grades g ON s.id = g.student_id AND g.teacher_id = $1
LEFT JOIN assignments a ON g.assignment_id = a.id
LEFT JOIN teacher_notes tn ON s.id = tn.student_id AND tn.teacher_id = $1
WHERE s.id = $2
ORDER BY a.due_date DESC NULLS LAST`

const assignmentAnalysisSQL = `
SELECT
    a.id AS assignment_id,
    a.name AS assignment_name,
    a.due_date,
    a.max_points,
    COUNT(g.id) AS total_submissions,
    COUNT(*) FILTER (WHERE g.grade IS NOT NULL) AS completed,
    COUNT(*) FILTER (WHERE g.grade IS NULL) AS missing,
    ROUND(AVG(CASE WHEN g.grade IS NOT NULL AND a.max_points > 0 THEN (g.grade / a.max_points * 100) END)::numeric, 1) AS avg_percentage,
    ROUND(MIN(CASE WHEN g.grade IS NOT NULL AND a.max_points > 0 THEN (g.grade / a.max_points * 100) END)::numeric, 1) AS min_percentage,
    ROUND(MAX(CASE WHEN g.grade IS NOT NULL AND a.max_points > 0 THEN (g.grade / a.max_points * 100) END)::numeric, 1) AS max_percentage,
    ROUND(STDDEV(CASE WHEN g.grade IS NOT NULL AND a.max_points > 0 THEN (g.grade / a.max_points * 100) END)::numeric, 1) AS std_deviation
FROM assignments a
LEFT JOIN grades g ON a.id = g.assignment_id
WHERE a.teacher_id = $1
GROUP BY a.id, a.name, a.due_date, a.max_points
HAVING COUNT(g.id) > 0
ORDER BY avg_percentage ASC NULLS LAST, missing DESC
LIMIT 50`

const missingWorkSQL = `
SELECT
    s.id,
    s.first_name,
    s.last_name,
    s.email,
    COUNT(*) FILTER (WHERE g.grade IS NULL) AS missing_count,
    COUNT(a.id) AS total_assignments,
    ROUND((COUNT(*) FILTER (WHERE g.grade IS NULL))::numeric / NULLIF(COUNT(a.id), 0) * 100, 1) AS missing_percentage,
    string_agg(a.name, ', ' ORDER BY a.due_date) FILTER (WHERE g.grade IS NULL) AS missing_assignments,
    tn.note AS teacher_note
FROM students s
LEFT JOIN grades g ON s.id = g.student_id AND g.teacher_id = $1
LEFT JOIN assignments a ON g.assignment_id = a.id
LEFT JOIN teacher_notes tn ON s.id = tn.student_id AND tn.teacher_id = $1
WHERE EXISTS (
    SELECT 1 FROM grades g2
    WHERE g2.student_id = s.id AND g2.teacher_id = $1
)
GROUP BY s.id, s.first_name, s.last_name, s.email, tn.note
HAVING COUNT(*) FILTER (WHERE g.grade IS NULL) >= $2
ORDER BY missing_count DESC
LIMIT 50`

const classOverviewSQL = `
SELECT
    COUNT(DISTINCT s.id) AS total_students,
    COUNT(DISTINCT a.id) AS total_assignments,
    ROUND(AVG(CASE WHEN g.grade IS NOT NULL AND a.max_points > 0 THEN (g.grade / a.max_points * 100) END)::numeric, 1) AS class_average,
    COUNT(*) FILTER (WHERE g.grade IS NULL) AS total_missing,
    COUNT(*) FILTER (WHERE a.max_points > 0 AND (g.grade / a.max_points * 100) >= 90) AS a_grades,
    COUNT(*) FILTER (WHERE a.max_points > 0 AND (g.grade / a.max_points * 100) >= 80 AND (g.grade / a.max_points * 100) < 90) AS b_grades,
    COUNT(*) FILTER (WHERE a.max_points > 0 AND (g.grade / a.max_points * 100) >= 70 AND (g.grade / a.max_points * 100) < 80) AS c_grades,
    COUNT(*) FILTER (WHERE a.max_points > 0 AND (g.grade / a.max_points * 100) >= 60 AND (g.grade / a.max_points * 100) < 70) AS d_grades,
    COUNT(*) FILTER (WHERE a.max_points > 0 AND (g.grade / a.max_points * 100) < 60) AS f_grades
FROM assignments a
LEFT JOIN grades g ON a.id = g.assignment_id
LEFT JOIN students s ON g.student_id = s.id
WHERE a.teacher_id = $1`

const gradeTrendsSQL = `
SELECT
    a.due_date::date AS date,
    a.name AS assignment_name,
    ROUND(AVG(CASE WHEN g.grade IS NOT NULL AND a.max_points > 0 THEN (g.grade / a.max_points * 100) END)::numeric, 1) AS avg_score,
    COUNT(g.id) AS submissions
FROM assignments a
LEFT JOIN grades g ON a.id = g.assignment_id
WHERE a.teacher_id = $1
    AND a.due_date >= CURRENT_DATE - $2::int
    AND a.due_date <= CURRENT_DATE
GROUP BY a.due_date::date, a.name
ORDER BY date DESC`

const searchStudentSQL = `
SELECT
    s.id,
    s.first_name,
    s.last_name,
    s.email,
    ROUND(AVG(CASE WHEN g.grade IS NOT NULL AND a.max_points > 0 THEN (g.grade / a.max_points * 100) END)::numeric, 1) AS avg_grade
FROM students s
JOIN grades g ON s.id = g.student_id
JOIN assignments a ON g.assignment_id = a.id
WHERE g.teacher_id = $1
    AND (s.first_name ILIKE $2 OR s.last_name ILIKE $2 OR (s.first_name || ' ' || s.last_name) ILIKE $2)
GROUP BY s.id, s.first_name, s.last_name, s.email
LIMIT 20`

const teacherNotesSQL = `
SELECT
    tn.id,
    s.id AS student_id,
    s.first_name,
    s.last_name,
    tn.note,
    tn.created_at,
    tn.updated_at
FROM teacher_notes tn
JOIN students s ON tn.student_id = s.id
WHERE tn.teacher_id = $1
ORDER BY tn.updated_at DESC`

const uploadHistorySQL = `
SELECT
    u.id,
    u.filename,
    u.uploaded_at,
    COUNT(DISTINCT a.id) AS assignments_count,
    COUNT(DISTINCT g.id) AS grades_count
FROM uploads u
LEFT JOIN assignments a ON u.id = a.upload_id
LEFT JOIN grades g ON u.id = g.upload_id
WHERE u.teacher_id = $1
GROUP BY u.id, u.filename, u.uploaded_at
ORDER BY u.uploaded_at DESC
LIMIT $2`

func catalogEntries() []entry {
	return []entry{
		{
			def: Definition{
				Key:         "struggling_students",
				Label:       "Struggling students",
				Description: "Students below the grade threshold or with more than three missing assignments.",
				Params:      []Param{{Name: "threshold", Kind: "number"}},
			},
			sql: strugglingStudentsSQL,
			bind: func(c *Catalog, teacherID int64, params map[string]any) ([]any, error) {
				threshold, err := floatParam(params, "threshold", c.cfg.StrugglingThreshold)
				if err != nil {
					return nil, err
				}
				return []any{teacherID, threshold}, nil
			},
		},
		{
			def: Definition{
				Key:         "student_detail",
				Label:       "Student detail",
				Description: "All assignments and grades for one student, with any teacher note.",
				Params:      []Param{{Name: "student_id", Kind: "integer", Required: true}},
			},
			sql: studentDetailSQL,
			bind: func(_ *Catalog, teacherID int64, params map[string]any) ([]any, error) {
				studentID, err := requiredInt(params, "student_id")
				if err != nil {
					return nil, err
				}
				return []any{teacherID, studentID}, nil
			},
		},
		{
			def: Definition{
				Key:         "missing_work",
				Label:       "Missing work",
				Description: "Students with missing assignments, worst first.",
				Params:      []Param{{Name: "min_missing", Kind: "integer"}},
			},
			sql: missingWorkSQL,
			bind: func(_ *Catalog, teacherID int64, params map[string]any) ([]any, error) {
				minMissing, err := intParam(params, "min_missing", 1)
				if err != nil {
					return nil, err
				}
				return []any{teacherID, minMissing}, nil
			},
		},
		{
			def: Definition{
				Key:         "assignment_analysis",
				Label:       "Assignment analysis",
				Description: "Per-assignment averages, spread, and completion, hardest first.",
			},
			sql: assignmentAnalysisSQL,
			bind: func(_ *Catalog, teacherID int64, _ map[string]any) ([]any, error) {
				return []any{teacherID}, nil
			},
		},
		{
			def: Definition{
				Key:         "class_overview",
				Label:       "Class overview",
				Description: "Class-wide averages and the letter-grade distribution.",
			},
			sql: classOverviewSQL,
			bind: func(_ *Catalog, teacherID int64, _ map[string]any) ([]any, error) {
				return []any{teacherID}, nil
			},
		},
		{
			def: Definition{
				Key:         "grade_trends",
				Label:       "Grade trends",
				Description: "Per-assignment averages over the recent window, newest first.",
				Params:      []Param{{Name: "days", Kind: "integer"}},
			},
			sql: gradeTrendsSQL,
			bind: func(c *Catalog, teacherID int64, params map[string]any) ([]any, error) {
				days, err := intParam(params, "days", int64(c.cfg.TrendWindowDays))
				if err != nil {
					return nil, err
				}
				return []any{teacherID, days}, nil
			},
		},
		{
			def: Definition{
				Key:         "search_student",
				Label:       "Search students",
				Description: "Find students by first, last, or full name.",
				Params:      []Param{{Name: "name", Kind: "string", Required: true}},
			},
			sql: searchStudentSQL,
			bind: func(_ *Catalog, teacherID int64, params map[string]any) ([]any, error) {
				name, err := requiredString(params, "name")
				if err != nil {
					return nil, err
				}
				return []any{teacherID, "%" + name + "%"}, nil
			},
		},
		{
			def: Definition{
				Key:         "teacher_notes",
				Label:       "Teacher notes",
				Description: "All notes you have written, most recently updated first.",
			},
			sql: teacherNotesSQL,
			bind: func(_ *Catalog, teacherID int64, _ map[string]any) ([]any, error) {
				return []any{teacherID}, nil
			},
		},
		{
			def: Definition{
				Key:         "upload_history",
				Label:       "Upload history",
				Description: "Recent grade-file uploads and what each one added.",
				Params:      []Param{{Name: "limit", Kind: "integer"}},
			},
			sql: uploadHistorySQL,
			bind: func(_ *Catalog, teacherID int64, params map[string]any) ([]any, error) {
				limit, err := intParam(params, "limit", 10)
				if err != nil {
					return nil, err
				}
				return []any{teacherID, limit}, nil
			},
		},
	}
}
