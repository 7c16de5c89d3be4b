// Package policy holds the immutable query policy: which tables a
// generated statement may touch, which keywords disqualify it outright,
// and the column every statement must be scoped by. The policy is pure
// data; all enforcement lives in sqlguard.
package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/gradeinsight/gradeinsight/internal/config"
)

type Policy struct {
	allowedTables   map[string]struct{}
	blockedKeywords []string

	IsolationColumn string
	QueryTimeout    time.Duration
	MaxRows         int
}

func New(cfg config.PolicyConfig) (Policy, error) {
	if len(cfg.AllowedTables) == 0 {
		return Policy{}, fmt.Errorf("at least one allowed table is required")
	}
	if len(cfg.BlockedKeywords) == 0 {
		return Policy{}, fmt.Errorf("at least one blocked keyword is required")
	}
	if strings.TrimSpace(cfg.IsolationColumn) == "" {
		return Policy{}, fmt.Errorf("isolation column is required")
	}
	if cfg.QueryTimeout <= 0 {
		return Policy{}, fmt.Errorf("query timeout must be positive")
	}
	if cfg.MaxRows <= 0 {
		return Policy{}, fmt.Errorf("max rows must be positive")
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedTables))
	for _, table := range cfg.AllowedTables {
		table = strings.ToLower(strings.TrimSpace(table))
		if table == "" {
			continue
		}
		allowed[table] = struct{}{}
	}

	blocked := make([]string, 0, len(cfg.BlockedKeywords))
	seen := make(map[string]struct{}, len(cfg.BlockedKeywords))
	for _, keyword := range cfg.BlockedKeywords {
		keyword = strings.ToUpper(strings.TrimSpace(keyword))
		if keyword == "" {
			continue
		}
		if _, ok := seen[keyword]; ok {
			continue
		}
		seen[keyword] = struct{}{}
		blocked = append(blocked, keyword)
	}

	return Policy{
		allowedTables:   allowed,
		blockedKeywords: blocked,
		IsolationColumn: strings.ToLower(strings.TrimSpace(cfg.IsolationColumn)),
		QueryTimeout:    cfg.QueryTimeout,
		MaxRows:         cfg.MaxRows,
	}, nil
}

func (p Policy) TableAllowed(name string) bool {
	_, ok := p.allowedTables[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// BlockedKeywords returns the deny list in upper case, load order preserved.
func (p Policy) BlockedKeywords() []string {
	out := make([]string, len(p.blockedKeywords))
	copy(out, p.blockedKeywords)
	return out
}
