package backup

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// ErrNoBackups is returned when a restore finds no backup for a controller.
var ErrNoBackups = errors.New("backup: no backup entries found")

// Frame is one configuration frame as downloaded from the controller.
type Frame = map[string]interface{}

// Store writes, lists and rotates controller configuration backups below a
// host configuration directory.
type Store struct {
	configDir string
	logger    *zap.Logger

	// now is swapped in tests
	now func() time.Time
}

// NewStore creates a backup store rooted at the host config directory.
func NewStore(configDir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{configDir: configDir, logger: logger, now: time.Now}
}

// Create writes a new backup entry for the controller and applies the
// retention policy to its (controller, schedule) pool. Two files are
// written per entry: the frame-per-line .bak used for restore and a
// pretty-printed .json sibling. Writes go through a temp file and rename so
// no partial entry ever carries a final name.
func (s *Store) Create(ident, schedule, path string, frames []Frame, retention int) (*Entry, error) {
	if len(frames) == 0 {
		return nil, errors.New("backup: refusing to write empty backup")
	}

	dir, err := EnsureDir(s.configDir, path)
	if err != nil {
		return nil, err
	}

	ts := s.now()
	base := FileBase(ident, schedule, ts)
	entry := &Entry{Base: base, Timestamp: ts}

	var lines []byte
	for _, frame := range frames {
		buf, err := json.Marshal(frame)
		if err != nil {
			return nil, err
		}
		lines = append(lines, buf...)
		lines = append(lines, '\n')
	}
	bakPath := filepath.Join(dir, base+".bak")
	if err := writeFileAtomic(bakPath, lines); err != nil {
		return nil, err
	}
	entry.Files = append(entry.Files, bakPath)

	pretty, err := json.MarshalIndent(frames, "", "  ")
	if err != nil {
		return nil, err
	}
	jsonPath := filepath.Join(dir, base+".json")
	if err := writeFileAtomic(jsonPath, pretty); err != nil {
		_ = os.Remove(bakPath)
		return nil, err
	}
	entry.Files = append(entry.Files, jsonPath)

	s.logger.Info("backup written",
		zap.String("base", base),
		zap.String("dir", dir),
		zap.String("size", humanize.Bytes(uint64(len(lines)+len(pretty)))))

	s.rotate(dir, ident, schedule, *entry, retention)
	return entry, nil
}

// rotate applies the retention policy to one pool. Deletion failures are
// warnings only, the backup itself already succeeded.
func (s *Store) rotate(dir, ident, schedule string, newest Entry, retention int) {
	if retention <= 0 {
		return
	}

	existing, err := scanPool(dir, PoolPrefix(ident, schedule))
	if err != nil {
		s.logger.Warn("retention scan failed", zap.String("dir", dir), zap.Error(err))
		return
	}

	var removed, failed int
	var removedBytes uint64
	for _, entry := range Plan(existing, newest, retention) {
		for _, file := range entry.Files {
			if fi, err := os.Stat(file); err == nil {
				removedBytes += uint64(fi.Size())
			}
			if err := os.Remove(file); err != nil {
				failed++
				s.logger.Warn("failed to remove rotated backup", zap.String("file", file), zap.Error(err))
				continue
			}
			removed++
		}
	}
	if removed > 0 || failed > 0 {
		s.logger.Info("backup rotation done",
			zap.String("pool", PoolPrefix(ident, schedule)),
			zap.Int("retention", retention),
			zap.Int("removed", removed),
			zap.Int("failed", failed),
			zap.String("reclaimed", humanize.Bytes(removedBytes)))
	}
}

// List returns every backup entry for the controller in the resolved
// directory, across all schedule pools, newest first.
func (s *Store) List(ident, path string) ([]Entry, error) {
	dir := ResolveDir(s.configDir, path)
	var entries []Entry
	for _, schedule := range []string{ScheduleNone, ScheduleDaily, ScheduleWeekly, ScheduleMonthly, ScheduleYearly} {
		pool, err := scanPool(dir, PoolPrefix(ident, schedule))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, err
		}
		entries = append(entries, pool...)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].Base < entries[j].Base
	})
	return entries, nil
}

// Latest returns the most recent backup entry for the controller.
func (s *Store) Latest(ident, path string) (*Entry, error) {
	entries, err := s.List(ident, path)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoBackups
	}
	return &entries[0], nil
}

// ReadFrames loads the restorable frames of a backup entry from its .bak
// file (one JSON frame per line).
func (s *Store) ReadFrames(entry *Entry) ([]Frame, error) {
	var bakPath string
	for _, file := range entry.Files {
		if strings.HasSuffix(file, ".bak") {
			bakPath = file
			break
		}
	}
	if bakPath == "" {
		return nil, fmt.Errorf("backup: entry %s has no .bak file", entry.Base)
	}

	fi, err := os.Open(bakPath)
	if err != nil {
		return nil, err
	}
	defer fi.Close()

	var frames []Frame
	scanner := bufio.NewScanner(fi)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var frame Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			return nil, fmt.Errorf("backup: corrupt entry %s: %w", entry.Base, err)
		}
		frames = append(frames, frame)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("backup: entry %s is empty", entry.Base)
	}
	return frames, nil
}

// scanPool collects the entries of one retention pool from a directory
// listing, grouping the files that share a base name.
func scanPool(dir, prefix string) ([]Entry, error) {
	infos, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	byBase := make(map[string]*Entry)
	for _, fi := range infos {
		if fi.IsDir() || !strings.HasPrefix(fi.Name(), prefix) {
			continue
		}
		ext := filepath.Ext(fi.Name())
		if ext != ".bak" && ext != ".json" {
			continue
		}
		base := strings.TrimSuffix(fi.Name(), ext)
		_, ts, ok := parseBase(base)
		if !ok {
			continue
		}
		entry, ok := byBase[base]
		if !ok {
			entry = &Entry{Base: base, Timestamp: ts}
			byBase[base] = entry
		}
		entry.Files = append(entry.Files, filepath.Join(dir, fi.Name()))
	}

	entries := make([]Entry, 0, len(byBase))
	for _, e := range byBase {
		sort.Strings(e.Files)
		entries = append(entries, *e)
	}
	return entries, nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := ioutil.TempFile(filepath.Dir(path), ".extalife-backup-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}
