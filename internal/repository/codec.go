package repository

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when a keyed row does not exist
var ErrNotFound = errors.New("not found")

// encodeTaskIDs stores a task id set as a sorted comma list ("1,4,7")
func encodeTaskIDs(ids []int) string {
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)

	parts := make([]string, 0, len(sorted))
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		parts = append(parts, strconv.Itoa(id))
	}
	return strings.Join(parts, ",")
}

func decodeTaskIDs(s string) ([]int, error) {
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid task id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// placeholders returns "?,?,?" for n arguments
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
