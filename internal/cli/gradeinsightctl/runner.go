// Package gradeinsightctl implements the terminal client: thin HTTP
// calls against a running gradeinsight-api, pretty-printing the JSON
// it gets back.
package gradeinsightctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	TeacherID  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

var studentRefPattern = regexp.MustCompile(`^@(\d+)$`)

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("gradeinsightctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8090"), "GradeInsight API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	teacherID := fs.String("teacher-id", defaults.TeacherID, "Teacher ID header (used when auth is disabled)")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 60s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]

	var (
		method string
		path   string
		body   []byte
	)
	switch command {
	case "health":
		method, path = http.MethodGet, "/v1/health"
	case "ready":
		method, path = http.MethodGet, "/v1/ready"
	case "status":
		method, path = http.MethodGet, "/v1/status"
	case "chat":
		if len(rest) == 0 {
			_, _ = fmt.Fprintln(stderr, "chat requires a message")
			return 2
		}
		payload, err := json.Marshal(map[string]any{"message": strings.Join(rest, " ")})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "encode request: %v\n", err)
			return 1
		}
		method, path, body = http.MethodPost, "/v1/chat", payload
	case "memories":
		method, path = http.MethodGet, "/v1/memories"
		if len(rest) > 0 {
			path += "?filter=" + url.QueryEscape(strings.Join(rest, " "))
		}
	case "remember":
		if len(rest) == 0 {
			_, _ = fmt.Fprintln(stderr, "remember requires text")
			return 2
		}
		payload := map[string]any{}
		if match := studentRefPattern.FindStringSubmatch(rest[0]); match != nil {
			id, err := strconv.ParseInt(match[1], 10, 64)
			if err == nil {
				payload["student_id"] = id
				rest = rest[1:]
			}
		}
		if len(rest) == 0 {
			_, _ = fmt.Fprintln(stderr, "remember requires text")
			return 2
		}
		payload["content"] = strings.Join(rest, " ")
		encoded, err := json.Marshal(payload)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "encode request: %v\n", err)
			return 1
		}
		method, path, body = http.MethodPost, "/v1/memories", encoded
	case "forget":
		if len(rest) != 1 {
			_, _ = fmt.Fprintln(stderr, "forget requires a memory id")
			return 2
		}
		method, path = http.MethodDelete, "/v1/memories/"+url.PathEscape(rest[0])
	case "queries":
		method, path = http.MethodGet, "/v1/quickqueries"
	case "run":
		if len(rest) != 1 {
			_, _ = fmt.Fprintln(stderr, "run requires a quick query key")
			return 2
		}
		method, path, body = http.MethodPost, "/v1/quickqueries/"+url.PathEscape(rest[0])+"/run", []byte(`{}`)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, *apiKey, *teacherID, body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey, teacherID string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}
	if strings.TrimSpace(teacherID) != "" {
		req.Header.Set("X-Teacher-ID", strings.TrimSpace(teacherID))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: gradeinsightctl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                   GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                    GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  status                   GET /v1/status")
	_, _ = fmt.Fprintln(w, "  chat <message>           POST /v1/chat")
	_, _ = fmt.Fprintln(w, "  memories [filter]        GET /v1/memories")
	_, _ = fmt.Fprintln(w, "  remember [@id] <text>    POST /v1/memories")
	_, _ = fmt.Fprintln(w, "  forget <id>              DELETE /v1/memories/{id}")
	_, _ = fmt.Fprintln(w, "  queries                  GET /v1/quickqueries")
	_, _ = fmt.Fprintln(w, "  run <key>                POST /v1/quickqueries/{key}/run")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
