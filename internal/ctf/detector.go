package ctf

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/axiomchronicles/drevoid-server/internal/store"
)

// Capture is a recorded flag: the matched value, its first finder, the
// room it surfaced in, and when. Captures are never mutated or deleted.
type Capture struct {
	Value      string
	Finder     string
	Room       string
	CapturedAt time.Time
}

// Standing is one leaderboard row.
type Standing struct {
	Username     string
	Captures     int
	FirstCapture time.Time
}

// Detector scans message bodies for flag strings and owns the capture
// records. Scan is pure; Record is the only mutation and performs its
// uniqueness check and insert as one atomic step, so two simultaneous
// finders of the same value cannot both be credited.
type Detector struct {
	log      *zerolog.Logger
	patterns []*regexp.Regexp
	archive  store.FlagStore // optional write-through archive

	mu       sync.Mutex
	captures map[string]Capture
	order    []string // values in capture order
}

// NewDetector compiles the given patterns (case-insensitive). An empty
// list falls back to DefaultPatterns. archive may be nil.
func NewDetector(patterns []string, archive store.FlagStore, logger *zerolog.Logger) (*Detector, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile flag pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &Detector{
		log:      logger,
		patterns: compiled,
		archive:  archive,
		captures: make(map[string]Capture),
	}, nil
}

// Seed restores persisted captures at startup.
func (d *Detector) Seed(captures []store.FlagCapture) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range captures {
		if _, ok := d.captures[c.Value]; ok {
			continue
		}
		d.captures[c.Value] = Capture{
			Value:      c.Value,
			Finder:     c.Finder,
			Room:       c.Room,
			CapturedAt: c.CapturedAt,
		}
		d.order = append(d.order, c.Value)
	}
}

// Scan returns the candidate flag values in body, canonicalized and
// deduplicated, in match order. Earlier patterns claim their spans, so
// the generic formats cannot re-match inside a platform-prefixed flag.
// It has no side effects.
func (d *Detector) Scan(body string) []string {
	var values []string
	var claimed [][2]int
	seen := make(map[string]struct{})
	for _, re := range d.patterns {
		for _, span := range re.FindAllStringIndex(body, -1) {
			if overlaps(claimed, span[0], span[1]) {
				continue
			}
			v := strings.TrimSpace(body[span[0]:span[1]])
			if v == "" {
				continue
			}
			claimed = append(claimed, [2]int{span[0], span[1]})
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
		}
	}
	return values
}

func overlaps(claimed [][2]int, start, end int) bool {
	for _, c := range claimed {
		if start < c[1] && end > c[0] {
			return true
		}
	}
	return false
}

// Record credits value to finder unless it was already captured. The
// returned capture is the authoritative record either way; new reports
// whether this call created it.
func (d *Detector) Record(value, finder, room string) (Capture, bool) {
	value = strings.TrimSpace(value)

	d.mu.Lock()
	if existing, ok := d.captures[value]; ok {
		d.mu.Unlock()
		return existing, false
	}
	capture := Capture{
		Value:      value,
		Finder:     finder,
		Room:       room,
		CapturedAt: time.Now(),
	}
	d.captures[value] = capture
	d.order = append(d.order, value)
	d.mu.Unlock()

	if d.archive != nil {
		err := d.archive.AddFlag(context.Background(), store.FlagCapture{
			Value:      capture.Value,
			Finder:     capture.Finder,
			Room:       capture.Room,
			CapturedAt: capture.CapturedAt,
		})
		if err != nil {
			d.log.Error().Err(err).Str("flag", value).Msg("persist flag capture")
		}
	}
	return capture, true
}

// Captures returns all records in capture order.
func (d *Detector) Captures() []Capture {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Capture, 0, len(d.order))
	for _, v := range d.order {
		out = append(out, d.captures[v])
	}
	return out
}

// Count returns the number of recorded captures.
func (d *Detector) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.captures)
}

// Leaderboard ranks finders by capture count, breaking ties by earliest
// first capture, then by name for a stable order.
func (d *Detector) Leaderboard() []Standing {
	d.mu.Lock()
	counts := make(map[string]int)
	first := make(map[string]time.Time)
	for _, c := range d.captures {
		counts[c.Finder]++
		if t, ok := first[c.Finder]; !ok || c.CapturedAt.Before(t) {
			first[c.Finder] = c.CapturedAt
		}
	}
	d.mu.Unlock()

	standings := make([]Standing, 0, len(counts))
	for user, n := range counts {
		standings = append(standings, Standing{
			Username:     user,
			Captures:     n,
			FirstCapture: first[user],
		})
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Captures != standings[j].Captures {
			return standings[i].Captures > standings[j].Captures
		}
		if !standings[i].FirstCapture.Equal(standings[j].FirstCapture) {
			return standings[i].FirstCapture.Before(standings[j].FirstCapture)
		}
		return standings[i].Username < standings[j].Username
	})
	return standings
}
