package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"regexp"
	"time"
)

var (
	selectorRe  = regexp.MustCompile(`^([a-zA-Z_:][a-zA-Z0-9_:]*)?(?:\{([^}]*)\})?$`)
	labelPairRe = regexp.MustCompile(`^\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*=\s*"((?:[^"\\]|\\.)*)"\s*$`)
)

// ParseSelector parses a simple series selector of the form
// metric_name{label="value",...} into a label matcher map. An empty
// query matches all series. Anything beyond plain equality matching is
// rejected; the error is reported back through the query API envelope.
func ParseSelector(query string) (map[string]string, error) {
	if query == "" {
		return nil, nil
	}

	m := selectorRe.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("unsupported query expression %q", query)
	}

	selectors := make(map[string]string)
	if m[1] != "" {
		selectors["__name__"] = m[1]
	}
	if m[2] != "" {
		for _, pair := range splitLabelPairs(m[2]) {
			pm := labelPairRe.FindStringSubmatch(pair)
			if pm == nil {
				return nil, fmt.Errorf("invalid label matcher %q", pair)
			}
			selectors[pm[1]] = unescapeLabelValue(pm[2])
		}
	}
	if len(selectors) == 0 {
		return nil, fmt.Errorf("unsupported query expression %q", query)
	}
	return selectors, nil
}

// splitLabelPairs splits on commas outside quoted values.
func splitLabelPairs(s string) []string {
	var out []string
	var start int
	inQuotes := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if inQuotes {
				i++
			}
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func unescapeLabelValue(s string) string {
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}

// blockKey generates the storage key of a time block:
// tenant / seriesID / blockTime, the IDs big-endian for ordered scans.
func blockKey(tenantID string, seriesID uint64, blockTime int64) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString(tenantID)
	buf.WriteByte('/')
	binary.Write(buf, binary.BigEndian, seriesID)
	buf.WriteByte('/')
	binary.Write(buf, binary.BigEndian, blockTime)
	return buf.Bytes()
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
