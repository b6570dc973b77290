package store

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"
)

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func timestamp(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

// parseTimeString accepts the RFC3339Nano format written by this store plus
// the space-separated form SQLite produces for datetime() defaults.
func parseTimeString(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed
	}
	if parsed, err := time.Parse("2006-01-02 15:04:05", value); err == nil {
		return parsed
	}
	return time.Time{}
}

func parseNullTime(value sql.NullString) time.Time {
	if !value.Valid {
		return time.Time{}
	}
	return parseTimeString(value.String)
}

// encodeStrings stores string slices as JSON so empty and absent stay
// distinguishable from a one-element list.
func encodeStrings(values []string) string {
	if len(values) == 0 {
		return ""
	}
	data, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(data)
}

func decodeStrings(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(value), &out); err != nil {
		return nil
	}
	return out
}

func encodeGaps(gaps []TrackGap) string {
	if len(gaps) == 0 {
		return ""
	}
	data, err := json.Marshal(gaps)
	if err != nil {
		return ""
	}
	return string(data)
}

func decodeGaps(value string) []TrackGap {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var out []TrackGap
	if err := json.Unmarshal([]byte(value), &out); err != nil {
		return nil
	}
	return out
}
