package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vonshlovens/spokesync/internal/domain"
)

// SiteStatus summarises the local database for the status command
type SiteStatus struct {
	Connected    bool
	Documents    int
	Media        int
	Destinations int
	Sources      int
	Deliveries   map[string]int
	LastActivity *time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func encodeMeta(m domain.Meta) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal meta: %w", err)
	}
	return raw, nil
}

func decodeMeta(raw []byte) (domain.Meta, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m domain.Meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal meta: %w", err)
	}
	return m, nil
}

func skipList(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	return out
}

func skipMap(list []string) map[string]bool {
	if len(list) == 0 {
		return nil
	}
	m := make(map[string]bool, len(list))
	for _, k := range list {
		m[k] = true
	}
	return m
}

func mediaIDs(refs []domain.MediaRef) []int64 {
	ids := make([]int64, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.ID)
	}
	return ids
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
