package fat32

import (
	"time"
)

// ParseDate decodes a 16-bit FAT date stamp relative to the MS-DOS epoch of
// 1980-01-01: bits 0-4 day of month, bits 5-8 month, bits 9-15 years since
// 1980. A zero day or month is invalid on disk and decodes to time.Time{},
// which keeps time.Time.IsZero() usable. Entries created by this driver
// carry all-zero stamps and therefore decode to the zero time.
func ParseDate(input uint16) time.Time {
	dayOfMonth := input & 0x1F
	monthOfYear := input & 0x1E0 >> 5
	yearSince1980 := input & 0xFE00 >> 9

	if dayOfMonth == 0 || monthOfYear == 0 {
		return time.Time{}
	}

	return time.Date(1980+int(yearSince1980), time.Month(monthOfYear), int(dayOfMonth), 0, 0, 0, 0, time.UTC)
}

// ParseTime decodes a 16-bit FAT time stamp with two-second granularity:
// bits 0-4 two-second count, bits 5-10 minutes, bits 11-15 hours. The result
// always carries the date January 1, year 1, so midnight satisfies
// time.Time.IsZero(). Out-of-range values saturate at 23:59:59.
func ParseTime(input uint16) time.Time {
	seconds := int(input&0x1F) * 2
	minutes := input & 0x7E0 >> 5
	hours := input & 0xF800 >> 11

	result := time.Date(1, 1, 1, int(hours), int(minutes), seconds, 0, time.UTC)

	if result.Day() > 1 || minutes > 59 || seconds > 59 {
		return time.Date(1, 1, 1, 23, 59, 59, 0, time.UTC)
	}

	return result
}
