package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrBadAngle is returned for sexagesimal strings that cannot be parsed.
var ErrBadAngle = errors.New("protocol: invalid angle")

// Angle is a decimal angle that decodes from either a JSON number or a
// sexagesimal string ("05:35:17.3", "-05 23 28", "12h30m00s").
type Angle float64

// UnmarshalJSON implements json.Unmarshaler.
func (a *Angle) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := ParseSexagesimal(s)
		if err != nil {
			return err
		}
		*a = Angle(v)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: %s", ErrBadAngle, data)
	}
	*a = Angle(f)
	return nil
}

// ParseSexagesimal parses "D:M:S", "D M S", "DhMmSs" or a plain decimal.
func ParseSexagesimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrBadAngle)
	}

	sign := 1.0
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}

	fields := strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case ':', ' ', 'h', 'm', 's', 'd', '\'', '"', '°':
			return true
		}
		return false
	})
	if len(fields) == 0 || len(fields) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrBadAngle, s)
	}

	var total float64
	scale := 1.0
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("%w: %q", ErrBadAngle, s)
		}
		if i > 0 && v >= 60 {
			return 0, fmt.Errorf("%w: %q component out of range", ErrBadAngle, s)
		}
		total += v / scale
		scale *= 60
	}
	return sign * total, nil
}

// FormatHours renders decimal hours as "HH:MM:SS.s".
func FormatHours(h float64) string {
	return formatSexagesimal(NormalizeHours(h), false)
}

// FormatDegrees renders decimal degrees as "+DD:MM:SS.s".
func FormatDegrees(d float64) string {
	return formatSexagesimal(d, true)
}

func formatSexagesimal(v float64, signed bool) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	} else if signed {
		sign = "+"
	}

	// Work in tenths of a second so rounding carries cleanly.
	tenths := int64(math.Round(v * 36000))
	whole := tenths / 36000
	rem := tenths % 36000
	minutes := rem / 600
	seconds := float64(rem%600) / 10

	return fmt.Sprintf("%s%02d:%02d:%04.1f", sign, whole, minutes, seconds)
}
