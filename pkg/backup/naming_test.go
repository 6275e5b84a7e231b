package backup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdent(t *testing.T) {
	assert.Equal(t, "001122AABBCC", Ident("00:11:22:aa:bb:cc"))
	assert.Equal(t, "192_168_1_10", Ident("192.168.1.10"))
}

func TestPoolPrefix(t *testing.T) {
	assert.Equal(t, "Backup__AABB__", PoolPrefix("aa:bb", ""))
	assert.Equal(t, "BackupDaily__AABB__", PoolPrefix("aa:bb", "daily"))
	assert.Equal(t, "BackupWeekly__AABB__", PoolPrefix("aa:bb", "WEEKLY"))
}

func TestFileBaseRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 13, 37, 42, 0, time.Local)
	base := FileBase("00:11:22:aa:bb:cc", "daily", ts)
	assert.Equal(t, "BackupDaily__001122AABBCC__20240501_133742", base)

	prefix, parsed, ok := parseBase(base)
	require.True(t, ok)
	assert.Equal(t, "BackupDaily__001122AABBCC__", prefix)
	assert.True(t, ts.Equal(parsed))
}

func TestParseBaseRejectsGarbage(t *testing.T) {
	_, _, ok := parseBase("not-a-backup-name")
	assert.False(t, ok)

	_, _, ok = parseBase("Backup__MAC__notatime")
	assert.False(t, ok)
}

func TestValidSchedule(t *testing.T) {
	for _, s := range []string{"", "daily", "weekly", "monthly", "yearly", "Daily"} {
		assert.True(t, ValidSchedule(s), s)
	}
	assert.False(t, ValidSchedule("hourly"))
}
