package assistant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gradeinsight/gradeinsight/internal/memory"
	"github.com/gradeinsight/gradeinsight/internal/observability"
)

const helpText = `Available commands:
  /remember [@studentID] <text>  save a memory, optionally linked to a student
  /memories [filter]             list saved memories
  /forget <id>                   delete a memory
  /queries                       list quick queries
  /run <key>                     run a quick query
  /help                          show this help

Anything else is answered as a question about your class.`

var rememberStudentPattern = regexp.MustCompile(`^@(\d+)\s+`)

func (s *Service) runCommand(ctx context.Context, req Request) (Response, error) {
	command, rest, _ := strings.Cut(req.Message, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(command) {
	case "/help":
		return Response{Reply: helpText}, nil
	case "/remember":
		return s.commandRemember(ctx, req.TeacherID, rest)
	case "/memories":
		return s.commandMemories(ctx, req.TeacherID, rest)
	case "/forget":
		return s.commandForget(ctx, req.TeacherID, rest)
	case "/queries":
		return s.commandQueries(), nil
	case "/run":
		return s.commandRun(ctx, req.TeacherID, rest), nil
	default:
		return Response{Reply: fmt.Sprintf("Unknown command %q. Try /help.", command)}, nil
	}
}

func (s *Service) commandRemember(ctx context.Context, teacherID int64, rest string) (Response, error) {
	if rest == "" {
		return Response{Reply: "Usage: /remember [@studentID] <text>"}, nil
	}

	var studentID *int64
	if match := rememberStudentPattern.FindStringSubmatch(rest); match != nil {
		id, err := strconv.ParseInt(match[1], 10, 64)
		if err == nil {
			studentID = &id
			rest = strings.TrimSpace(rest[len(match[0]):])
		}
	}
	if rest == "" {
		return Response{Reply: "Usage: /remember [@studentID] <text>"}, nil
	}

	saved, err := s.memories.Save(ctx, teacherID, studentID, rest, nil)
	if err != nil {
		s.logger.Warn("memory save failed", "teacher_id", teacherID, "error", err)
		return Response{Reply: "I couldn't save that memory. Please try again."}, nil
	}
	return Response{Reply: fmt.Sprintf("Saved memory #%d.", saved.ID)}, nil
}

func (s *Service) commandMemories(ctx context.Context, teacherID int64, filter string) (Response, error) {
	memories, err := s.memories.Recall(ctx, teacherID, filter, 20)
	if err != nil {
		s.logger.Warn("memory recall failed", "teacher_id", teacherID, "error", err)
		return Response{Reply: "I couldn't load your memories. Please try again."}, nil
	}
	if len(memories) == 0 {
		if filter != "" {
			return Response{Reply: fmt.Sprintf("No memories match %q.", filter)}, nil
		}
		return Response{Reply: "No memories saved yet. Use /remember to add one."}, nil
	}

	var b strings.Builder
	b.WriteString("Your memories:\n")
	for _, m := range memories {
		b.WriteString(formatMemory(m))
		b.WriteString("\n")
	}
	return Response{Reply: strings.TrimRight(b.String(), "\n")}, nil
}

func (s *Service) commandForget(ctx context.Context, teacherID int64, rest string) (Response, error) {
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return Response{Reply: "Usage: /forget <id>"}, nil
	}

	if err := s.memories.Delete(ctx, teacherID, id); err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return Response{Reply: fmt.Sprintf("Memory #%d was not found.", id)}, nil
		}
		s.logger.Warn("memory delete failed", "teacher_id", teacherID, "id", id, "error", err)
		return Response{Reply: "I couldn't delete that memory. Please try again."}, nil
	}
	return Response{Reply: fmt.Sprintf("Deleted memory #%d.", id)}, nil
}

func (s *Service) commandQueries() Response {
	defs := s.catalog.List()
	var b strings.Builder
	b.WriteString("Quick queries (use /run <key>):\n")
	for _, def := range defs {
		fmt.Fprintf(&b, "  %-22s %s\n", def.Key, def.Description)
	}
	return Response{Reply: strings.TrimRight(b.String(), "\n")}
}

func (s *Service) commandRun(ctx context.Context, teacherID int64, key string) Response {
	if key == "" {
		return Response{Reply: "Usage: /run <key>. See /queries for the list."}
	}

	start := time.Now()
	result, err := s.catalog.Run(ctx, key, teacherID, nil)
	if err != nil {
		observability.ObserveQueryExecution("catalog", outcomeFor(err), time.Since(start))
		s.logger.Warn("quick query failed", "key", key, "teacher_id", teacherID, "error", err)
		return Response{Reply: fmt.Sprintf("Couldn't run %q. See /queries for valid keys.", key)}
	}
	observability.ObserveQueryExecution("catalog", "ok", time.Since(start))
	return Response{Reply: renderResult(&result), Data: &result, UsedData: true}
}

func formatMemory(m memory.Memory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  #%d", m.ID)
	if m.StudentID != nil {
		fmt.Fprintf(&b, " [student %d]", *m.StudentID)
	}
	fmt.Fprintf(&b, " %s (%s)", m.Content, m.CreatedAt.Format("2006-01-02"))
	return b.String()
}
