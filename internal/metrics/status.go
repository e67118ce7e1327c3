package metrics

import (
	"sort"
	"strconv"
)

// Status classes used for bucketing responses.
const (
	Class2xx   = "2xx"
	Class3xx   = "3xx"
	Class4xx   = "4xx"
	Class5xx   = "5xx"
	ClassError = "error"
)

// StatusClass maps an HTTP status code to its class. Codes outside 200-599,
// including 0 for requests without a response, are "error".
func StatusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return Class2xx
	case code >= 300 && code < 400:
		return Class3xx
	case code >= 400 && code < 500:
		return Class4xx
	case code >= 500 && code < 600:
		return Class5xx
	default:
		return ClassError
	}
}

// StatusBucket is one row of a status breakdown.
type StatusBucket struct {
	Code  string
	Count int64
}

// FlattenStatusCodes converts a code->count map into rows sorted by descending count,
// then by code for stability.
func FlattenStatusCodes(codes map[string]int64) []StatusBucket {
	if len(codes) == 0 {
		return nil
	}
	rows := make([]StatusBucket, 0, len(codes))
	for code, count := range codes {
		rows = append(rows, StatusBucket{Code: code, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			ci, erri := strconv.Atoi(rows[i].Code)
			cj, errj := strconv.Atoi(rows[j].Code)
			if erri == nil && errj == nil {
				return ci < cj
			}
			return rows[i].Code < rows[j].Code
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
