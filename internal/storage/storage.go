package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/Nixie-Tech-LLC/muezzin/internal/model"
)

// ErrNotFound is returned by Get when no record exists for a key.
var ErrNotFound = errors.New("schedule record not found")

// Store is the persistent key-value layer for schedule records.
type Store interface {
	Get(key model.Key) (*model.ScheduleRecord, error)
	Put(key model.Key, rec *model.ScheduleRecord) error
	Exists(key model.Key) bool
	// Dates lists every cached day for a location in ascending order.
	Dates(location string) ([]model.Date, error)
}

// FileStore keeps one JSON document per day under
// /{location}/{YYYY}/{MM}/{DD}-{MM}-{YYYY} on an afero filesystem.
type FileStore struct {
	fs afero.Fs
}

var _ Store = (*FileStore)(nil)

func NewFileStore(fs afero.Fs) *FileStore {
	return &FileStore{fs: fs}
}

// NewLocalStore roots a FileStore at dir on the host filesystem.
func NewLocalStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %v", model.ErrStorageFailure, err)
	}
	return NewFileStore(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// Fs exposes the underlying volume for other small state files.
func (s *FileStore) Fs() afero.Fs {
	return s.fs
}

// ValidateLocation rejects names that would escape or collide in the path
// scheme.
func ValidateLocation(location string) error {
	if strings.TrimSpace(location) == "" {
		return fmt.Errorf("%w: empty name", model.ErrInvalidLocation)
	}
	if strings.ContainsAny(location, `/\`) || location == "." || location == ".." {
		return fmt.Errorf("%w: %q", model.ErrInvalidLocation, location)
	}
	return nil
}

// Path maps a key to its storage path.
func Path(key model.Key) (string, error) {
	if err := ValidateLocation(key.Location); err != nil {
		return "", err
	}
	d := key.Date
	return fmt.Sprintf("/%s/%04d/%02d/%s", key.Location, d.Year, int(d.Month), d.String()), nil
}

func (s *FileStore) Get(key model.Key) (*model.ScheduleRecord, error) {
	p, err := Path(key)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Str("path", p).Msg("schedule read failed")
		return nil, fmt.Errorf("%w: read %s: %v", model.ErrStorageFailure, p, err)
	}
	if len(data) == 0 {
		log.Warn().Str("path", p).Msg("empty schedule file")
		return nil, ErrNotFound
	}

	var rec model.ScheduleRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Warn().Err(err).Str("path", p).Msg("corrupt schedule file")
		return nil, fmt.Errorf("%w: %s: %v", model.ErrMalformedSchedule, p, err)
	}
	return &rec, nil
}

// Put writes through a temp file and rename, so a power cut never leaves a
// half-written document at the final path. Last writer for a key wins.
func (s *FileStore) Put(key model.Key, rec *model.ScheduleRecord) error {
	p, err := Path(key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}

	if err := s.fs.MkdirAll(path.Dir(p), 0755); err != nil {
		log.Error().Err(err).Str("path", p).Msg("mkdir failed")
		return fmt.Errorf("%w: mkdir %s: %v", model.ErrStorageFailure, path.Dir(p), err)
	}

	tmp := p + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("schedule write failed")
		return fmt.Errorf("%w: write %s: %v", model.ErrStorageFailure, tmp, err)
	}
	if err := s.fs.Rename(tmp, p); err != nil {
		_ = s.fs.Remove(tmp)
		log.Error().Err(err).Str("path", p).Msg("schedule rename failed")
		return fmt.Errorf("%w: rename %s: %v", model.ErrStorageFailure, p, err)
	}

	log.Debug().Str("path", p).Int("bytes", len(data)).Msg("schedule saved")
	return nil
}

func (s *FileStore) Exists(key model.Key) bool {
	p, err := Path(key)
	if err != nil {
		return false
	}
	fi, err := s.fs.Stat(p)
	return err == nil && !fi.IsDir() && fi.Size() > 0
}

func (s *FileStore) Dates(location string) ([]model.Date, error) {
	if err := ValidateLocation(location); err != nil {
		return nil, err
	}
	root := "/" + location
	if ok, _ := afero.DirExists(s.fs, root); !ok {
		return nil, nil
	}

	var out []model.Date
	err := afero.Walk(s.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasSuffix(p, ".tmp") || info.Size() == 0 {
			return nil
		}
		d, perr := model.ParseDate(path.Base(p))
		if perr != nil {
			return nil
		}
		// skip files that sit in the wrong year/month directory
		if want, _ := Path(model.Key{Location: location, Date: d}); want != path.Clean(p) {
			return nil
		}
		out = append(out, d)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walk %s: %v", model.ErrStorageFailure, root, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}
