package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gradeinsight/gradeinsight/internal/cli/gradeinsightctl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("GRADEINSIGHT_CLI_TIMEOUT")), 60*time.Second)
	options := gradeinsightctl.Options{
		BaseURL:   envOr("GRADEINSIGHT_API_URL", "http://localhost:8090"),
		APIKey:    strings.TrimSpace(os.Getenv("GRADEINSIGHT_API_KEY")),
		TeacherID: strings.TrimSpace(os.Getenv("GRADEINSIGHT_TEACHER_ID")),
		Timeout:   timeout,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}

	code := gradeinsightctl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid GRADEINSIGHT_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
