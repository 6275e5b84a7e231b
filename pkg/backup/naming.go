package backup

import (
	"fmt"
	"strings"
	"time"
)

// timeLayout is the timestamp embedded in backup file names.
const timeLayout = "20060102_150405"

// Schedule labels group backups into independent retention pools.
const (
	ScheduleNone    = ""
	ScheduleDaily   = "daily"
	ScheduleWeekly  = "weekly"
	ScheduleMonthly = "monthly"
	ScheduleYearly  = "yearly"
)

// ValidSchedule reports whether s is one of the known schedule labels.
func ValidSchedule(s string) bool {
	switch strings.ToLower(s) {
	case ScheduleNone, ScheduleDaily, ScheduleWeekly, ScheduleMonthly, ScheduleYearly:
		return true
	}
	return false
}

// Ident normalizes a controller identifier (typically its MAC) for use in
// file names: dots to underscores, colons dropped, upper case.
func Ident(id string) string {
	id = strings.ReplaceAll(id, ".", "_")
	id = strings.ReplaceAll(id, ":", "")
	return strings.ToUpper(id)
}

// PoolPrefix returns the file name prefix shared by every backup in one
// (controller, schedule) retention pool, e.g. "BackupDaily__AABBCC__".
func PoolPrefix(ident, schedule string) string {
	return fmt.Sprintf("Backup%s__%s__", titleCase(schedule), Ident(ident))
}

// FileBase returns the extension-less name of a backup entry created at ts.
func FileBase(ident, schedule string, ts time.Time) string {
	return PoolPrefix(ident, schedule) + ts.Format(timeLayout)
}

// parseBase splits an entry base name into its pool prefix and timestamp.
func parseBase(base string) (prefix string, ts time.Time, ok bool) {
	i := strings.LastIndex(base, "__")
	if i < 0 {
		return "", time.Time{}, false
	}
	ts, err := time.ParseInLocation(timeLayout, base[i+2:], time.Local)
	if err != nil {
		return "", time.Time{}, false
	}
	return base[:i+2], ts, true
}

func titleCase(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
