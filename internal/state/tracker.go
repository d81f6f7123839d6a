package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

const dateLayout = "2006-01-02"

// persisted is the on-disk shape of the tracker state.
type persisted struct {
	LastLoadedDate string    `json:"last_loaded_date"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DateRange is the inclusive day range a run should load.
type DateRange struct {
	Min time.Time
	Max time.Time
}

// Empty reports whether there is nothing left to load.
func (r DateRange) Empty() bool { return r.Min.After(r.Max) }

func (r DateRange) String() string {
	return r.Min.Format(dateLayout) + " to " + r.Max.Format(dateLayout)
}

// Tracker persists the last successfully loaded date. Construct one per state
// file path; there is no package-level state.
type Tracker struct {
	path string
}

func NewTracker(path string) *Tracker {
	return &Tracker{path: path}
}

// Read returns the last loaded date. A missing or unreadable state file means
// "never run", not an error.
func (t *Tracker) Read() (time.Time, bool, error) {
	raw, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to read state file: %w", err)
	}

	var p persisted
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Warn().Err(err).Str("path", t.path).Msg("State file is corrupt, treating as never run")
		return time.Time{}, false, nil
	}
	d, err := time.Parse(dateLayout, p.LastLoadedDate)
	if err != nil {
		log.Warn().Err(err).Str("path", t.path).Msg("State file holds an invalid date, treating as never run")
		return time.Time{}, false, nil
	}
	return d, true, nil
}

// Advance persists d as the last loaded date. The record is written to a temp
// file and renamed into place so a crash can never leave half-written state.
func (t *Tracker) Advance(d time.Time) error {
	p := persisted{
		LastLoadedDate: d.Format(dateLayout),
		UpdatedAt:      time.Now().UTC(),
	}
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(t.path), ".pipeline_state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		return fmt.Errorf("failed to swap state file: %w", err)
	}

	log.Info().Str("last_loaded_date", p.LastLoadedDate).Msg("State advanced")
	return nil
}

// Reset deletes the state file. Resetting absent state is not an error.
func (t *Tracker) Reset() error {
	err := os.Remove(t.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	if err == nil {
		log.Info().Str("path", t.path).Msg("State file deleted")
	}
	return nil
}

// NextRange computes the day range the next run should load: start..today on
// the first run, last+1..today afterwards. The caller passes today so a run
// that spans midnight keeps a single processing date.
func (t *Tracker) NextRange(start, today time.Time) (DateRange, error) {
	last, ok, err := t.Read()
	if err != nil {
		return DateRange{}, err
	}
	today = truncateDay(today)
	if !ok {
		return DateRange{Min: truncateDay(start), Max: today}, nil
	}
	return DateRange{Min: truncateDay(last).AddDate(0, 0, 1), Max: today}, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
