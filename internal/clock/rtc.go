package clock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// ErrRTCUnset is returned by an RTC that has never been written.
var ErrRTCUnset = errors.New("rtc not set")

// RTC is the battery-backed clock peripheral. Readings are UTC.
type RTC interface {
	Now() (time.Time, error)
	Set(t time.Time) error
}

// FileRTC emulates a battery-backed clock on top of the host clock by
// persisting the correction learned from the last network sync. The offset
// file survives restarts the way the coin cell keeps the chip running.
type FileRTC struct {
	fs   afero.Fs
	path string
	host func() time.Time

	mu     sync.Mutex
	offset time.Duration
	set    bool
}

var _ RTC = (*FileRTC)(nil)

// NewFileRTC loads any previously stored correction from path. A missing
// file is not an error; Now reports ErrRTCUnset until the first Set.
func NewFileRTC(fs afero.Fs, path string) (*FileRTC, error) {
	r := &FileRTC{fs: fs, path: path, host: time.Now}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r, nil
		}
		return nil, fmt.Errorf("read rtc state: %w", err)
	}
	ns, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse rtc state %q: %w", path, err)
	}
	r.offset = time.Duration(ns)
	r.set = true
	return r, nil
}

func (r *FileRTC) Now() (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.set {
		return time.Time{}, ErrRTCUnset
	}
	return r.host().Add(r.offset).UTC(), nil
}

func (r *FileRTC) Set(t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	off := t.Sub(r.host())
	if err := afero.WriteFile(r.fs, r.path, []byte(strconv.FormatInt(int64(off), 10)), 0644); err != nil {
		return fmt.Errorf("write rtc state: %w", err)
	}
	r.offset = off
	r.set = true
	return nil
}

// Adjusted reports whether the clock has ever been corrected from the
// network.
func (r *FileRTC) Adjusted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set
}
