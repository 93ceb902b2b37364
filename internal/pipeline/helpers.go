// Package pipeline holds the four crawl pipelines (clan, player profile,
// grand arena, arena deck), each pairing a seed-list builder with a
// queue.Processor and a queue.BatchInserter over the Snapshot Store.
package pipeline

import (
	"strconv"
	"time"
)

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}

func asInt(v any) int {
	return int(asInt64(v))
}

func unixOrNil(v any) *time.Time {
	ts := asInt64(v)
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0)
	return &t
}
