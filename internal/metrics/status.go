package metrics

import "sort"

// CodeBucket is the aggregated count for one response code label.
type CodeBucket struct {
	Code       string  `json:"code"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// ErrorBucket is the aggregated count for one error label.
type ErrorBucket struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// FlattenCodes converts a code->count map into rows sorted by descending
// count, then by code. Percentages are relative to the sum of all codes.
func FlattenCodes(codes map[string]int64) []CodeBucket {
	if len(codes) == 0 {
		return nil
	}
	var sum int64
	for _, c := range codes {
		sum += c
	}
	rows := make([]CodeBucket, 0, len(codes))
	for code, count := range codes {
		pct := 0.0
		if sum > 0 {
			pct = float64(count) * 100 / float64(sum)
		}
		rows = append(rows, CodeBucket{Code: code, Count: count, Percentage: pct})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Code < rows[j].Code
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

// FlattenErrors converts an error-label->count map into rows sorted by
// descending count, then by label.
func FlattenErrors(types map[string]int64) []ErrorBucket {
	if len(types) == 0 {
		return nil
	}
	rows := make([]ErrorBucket, 0, len(types))
	for typ, count := range types {
		rows = append(rows, ErrorBucket{Type: typ, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Type < rows[j].Type
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
