package clock

import (
	"fmt"
	"time"
)

const DefaultOffsetHours = 7

// known maps the Indonesian zone labels the upstream reports to their
// fixed offsets; anything else falls back to the tz database.
var known = map[string]int{
	"Asia/Jakarta":   7,
	"Asia/Pontianak": 7,
	"Asia/Makassar":  8,
	"Asia/Jayapura":  9,
}

// Zone is the effective timezone: an IANA-style label plus whole-hour offset.
type Zone struct {
	Label       string `json:"label"`
	OffsetHours int    `json:"offset_hours"`
}

// ZoneFor resolves a label to a Zone. Unknown labels are looked up in the
// tz database; if that fails too the default offset is used.
func ZoneFor(label string) Zone {
	if off, ok := known[label]; ok {
		return Zone{Label: label, OffsetHours: off}
	}
	if label != "" {
		if loc, err := time.LoadLocation(label); err == nil {
			_, secs := time.Now().In(loc).Zone()
			return Zone{Label: label, OffsetHours: secs / 3600}
		}
	}
	return Zone{Label: label, OffsetHours: DefaultOffsetHours}
}

// Location returns the zone as a fixed-offset *time.Location named by its
// abbreviation. DST is not tracked; the offset is taken when the zone is
// resolved.
func (z Zone) Location() *time.Location {
	return time.FixedZone(Abbreviation(z.OffsetHours), z.OffsetHours*3600)
}

// Abbreviation names an offset the way Indonesian clocks display it.
func Abbreviation(offsetHours int) string {
	switch offsetHours {
	case 7:
		return "WIB"
	case 8:
		return "WITA"
	case 9:
		return "WIT"
	}
	if offsetHours < 0 {
		return fmt.Sprintf("UTC%d", offsetHours)
	}
	return fmt.Sprintf("UTC+%d", offsetHours)
}
