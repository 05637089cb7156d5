package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Backoff bounds for re-reading a subscription's result set after a failed query.
var (
	refreshBackoffMin = 50 * time.Millisecond
	refreshBackoffMax = 5 * time.Second
)

// applyQuery filters, orders and limits records given in arrival order.
func applyQuery(records []Record, q Query) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if matches(rec, q.Where) {
			out = append(out, rec)
		}
	}
	if len(q.OrderBy) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.OrderBy {
				c := compareValues(out[i].Fields[o.Field], out[j].Fields[o.Field])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func matches(rec Record, where []Condition) bool {
	for _, c := range where {
		v, ok := rec.Fields[c.Field]
		if !ok || compareValues(v, c.Value) != 0 {
			return false
		}
	}
	return true
}

func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs)
		}
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// normalizeFields round-trips fields through JSON so every backend sees the same value shapes
// and callers never share maps with the store.
func normalizeFields(fields map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return decodeFields(raw)
}

func decodeFields(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return out, nil
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyFields(t)
	case []any:
		cp := make([]any, len(t))
		for i := range t {
			cp[i] = copyValue(t[i])
		}
		return cp
	default:
		return v
	}
}

// offerLatest hands recs to a one-slot channel, replacing any undelivered older set.
// Only one goroutine may offer to a given channel at a time.
func offerLatest(ch chan []Record, recs []Record) {
	for {
		select {
		case ch <- recs:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// findWithRetry re-runs q until it succeeds or ctx ends, doubling the pause between attempts.
// onErr sees every failure. ok is false only when ctx ended first.
func findWithRetry(ctx context.Context, find func(context.Context, Query) ([]Record, error), q Query, onErr func(error)) ([]Record, bool) {
	wait := refreshBackoffMin
	for {
		recs, err := find(ctx, q)
		if err == nil {
			return recs, true
		}
		if ctx.Err() != nil {
			return nil, false
		}
		onErr(err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false
		case <-timer.C:
		}
		wait = min(wait*2, refreshBackoffMax)
	}
}
