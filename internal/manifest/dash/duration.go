// SPDX-License-Identifier: MIT

package dash

import (
	"strconv"
	"time"

	"github.com/streamsift/streamsift/internal/manifest"
)

// parseISODuration reads an ISO-8601 duration as used by MPD attributes,
// e.g. "PT1H30M12.5S". Calendar units use fixed approximations: a year is
// 365 days and a month 30 days. Fractions are accepted on any component.
func parseISODuration(s string) (time.Duration, error) {
	orig := s
	if len(s) < 2 || s[0] != 'P' {
		return 0, manifest.Malformedf("invalid ISO-8601 duration %q", orig)
	}
	s = s[1:]

	var (
		seconds    float64
		inTime     bool
		components int
	)
	i := 0
	for i < len(s) {
		if s[i] == 'T' {
			if inTime {
				return 0, manifest.Malformedf("invalid ISO-8601 duration %q", orig)
			}
			inTime = true
			i++
			continue
		}

		start := i
		for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
			i++
		}
		if start == i || i == len(s) {
			return 0, manifest.Malformedf("invalid ISO-8601 duration %q", orig)
		}
		val, err := strconv.ParseFloat(s[start:i], 64)
		if err != nil {
			return 0, manifest.Malformedf("invalid ISO-8601 duration %q", orig)
		}
		unit := s[i]
		i++

		var mult float64
		switch {
		case !inTime && unit == 'Y':
			mult = 365 * 24 * 3600
		case !inTime && unit == 'M':
			mult = 30 * 24 * 3600
		case !inTime && unit == 'W':
			mult = 7 * 24 * 3600
		case !inTime && unit == 'D':
			mult = 24 * 3600
		case inTime && unit == 'H':
			mult = 3600
		case inTime && unit == 'M':
			mult = 60
		case inTime && unit == 'S':
			mult = 1
		default:
			return 0, manifest.Malformedf("invalid ISO-8601 duration %q", orig)
		}
		seconds += val * mult
		components++
	}

	if components == 0 {
		return 0, manifest.Malformedf("invalid ISO-8601 duration %q", orig)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
