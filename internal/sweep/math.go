package sweep

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseValues parses an explicit axis list such as "250, 300,450". Values
// keep the order given, so grid rows follow the list. A blank entry is an
// error rather than skipped, since "250,,300" usually means a value went
// missing. An empty string yields no values.
func ParseValues(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	values := make([]float64, len(fields))
	for i, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			return nil, fmt.Errorf("value %d of %q is blank", i+1, s)
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("value %d of %q: %w", i+1, s, err)
		}
		values[i] = v
	}
	return values, nil
}

// FormatFloat renders v with six significant digits and no trailing zeros,
// the format used in every output table.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
