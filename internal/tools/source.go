package tools

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// csvSource reads a flat-file data store into header-keyed rows. The stores
// are read-only lookup services; each invocation re-reads the file so the
// tool stays a pure function of (parameters, file contents).
type csvSource struct {
	path string
}

func (s csvSource) rows() ([]map[string]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open data source %s: %w", s.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read data source %s: %w", s.path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// cleanDigits strips everything but decimal digits.
func cleanDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizePCID converts "89012", "089012", or "PC-089012" to "PC-089012".
func normalizePCID(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToUpper(s), "PC-") {
		return "PC-" + strings.TrimPrefix(strings.ToUpper(s), "PC-")
	}
	digits := cleanDigits(s)
	if digits == "" {
		return s
	}
	for len(digits) < 6 {
		digits = "0" + digits
	}
	return "PC-" + digits
}

func atoiOrZero(s string) int {
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

// parseSourceTime tries the timestamp layouts present in the data files.
func parseSourceTime(value string) (time.Time, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, false
	}
	layouts := []string{
		"02/01/06 15:04",
		"02/01/2006 15:04",
		"02/01/06 15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isTrue(s string) bool {
	return strings.EqualFold(s, "true")
}
