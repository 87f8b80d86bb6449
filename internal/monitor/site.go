package monitor

import (
	"net/url"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Site is one monitored page and its change memory.
//
// LastValue is the confirmed token, kept without its "+" prefix; empty means unset.
// LatestValues is the page's raw snapshot and only meaningful for TypeMultiple.
type Site struct {
	ID      string
	URL     string
	Type    ContentType
	Enabled bool

	LastValue         string
	LatestValues      []string
	ImageURL          string
	ButtonUpdated     bool
	FirstRunCompleted bool
}

// Decision is the outcome of ProcessUpdate.
type Decision struct {
	// Notify reports that a notification should be sent.
	Notify bool
	// Changed reports that a persisted field was mutated.
	Changed bool
	// Initial marks the transition out of AwaitingFirstData.
	Initial bool
}

// ProcessUpdate feeds one fetch result through the change detector.
func (s *Site) ProcessUpdate(data Content, imageURL string) Decision {
	if data.Empty() {
		return Decision{}
	}
	if s.Type == TypeUnknown {
		s.Type = data.resolveType()
	}

	var d Decision
	if s.Type == TypeMultiple {
		d = s.processList(data.Values, imageURL)
	} else {
		d = s.processSingle(data.Values[0], imageURL)
	}

	if !s.FirstRunCompleted {
		s.FirstRunCompleted = true
		d.Initial = true
		d.Changed = true
	}
	if d.Notify {
		s.ButtonUpdated = false
	}
	return d
}

func (s *Site) processSingle(raw, imageURL string) Decision {
	v := NormalizeValue(raw)
	if v == "" || (s.LastValue != "" && s.LastValue == v) {
		return Decision{}
	}
	s.LastValue = v
	s.ImageURL = imageURL
	return Decision{Notify: true, Changed: true}
}

func (s *Site) processList(values []string, imageURL string) Decision {
	if len(s.LatestValues) == 0 {
		// First observation: LastValue stays the candidate to confirm later.
		s.LatestValues = slices.Clone(values)
		s.ImageURL = imageURL
		return Decision{Notify: true, Changed: true}
	}
	if slices.Equal(values, s.LatestValues) {
		return Decision{}
	}

	pos := -1
	if s.LastValue != "" {
		pos = slices.Index(values, Prefixed(s.LastValue))
	}
	s.LatestValues = slices.Clone(values)
	s.ImageURL = imageURL
	return Decision{Notify: pos != 0, Changed: true}
}

// SetEnabled toggles monitoring. Re-enabling clears the change memory so the
// next fetch behaves like a first run.
func (s *Site) SetEnabled(on bool) {
	if on && !s.Enabled {
		s.reset()
	}
	s.Enabled = on
}

func (s *Site) reset() {
	s.LastValue = ""
	s.LatestValues = []string{}
	s.ImageURL = ""
	s.ButtonUpdated = false
	s.FirstRunCompleted = false
}

// Confirm makes value the confirmed token and marks the update button pressed.
func (s *Site) Confirm(value string) {
	if v := NormalizeValue(value); v != "" {
		s.LastValue = v
	}
	s.ButtonUpdated = true
}

// ConfirmLatest confirms the newest page value of a multiple-type site.
func (s *Site) ConfirmLatest() {
	if len(s.LatestValues) > 0 {
		s.LastValue = NormalizeValue(s.LatestValues[0])
	}
	s.ButtonUpdated = true
}

// Values returns the renderable tokens, each with its "+" prefix.
func (s *Site) Values() []string {
	if s.Type == TypeMultiple && len(s.LatestValues) > 0 {
		return slices.Clone(s.LatestValues)
	}
	if s.LastValue != "" {
		return []string{Prefixed(s.LastValue)}
	}
	return nil
}

func (s *Site) Clone() Site {
	cp := *s
	cp.LatestValues = slices.Clone(s.LatestValues)
	if cp.LatestValues == nil {
		cp.LatestValues = []string{}
	}
	return cp
}

// DisplayName is a short human label: the domain for single pages and the
// last path segment for list pages.
func (s *Site) DisplayName() string {
	if strings.TrimSpace(s.URL) == "" {
		return "Unknown"
	}
	if s.Type != TypeMultiple {
		host := s.URL
		if u, err := url.Parse(s.URL); err == nil && u.Host != "" {
			host = u.Hostname()
		}
		host = strings.TrimPrefix(host, "www.")
		label, _, _ := strings.Cut(host, ".")
		return capitalize(label)
	}

	parts := strings.FieldsFunc(s.URL, func(r rune) bool { return r == '/' })
	if len(parts) == 0 {
		return "Unknown"
	}
	last := parts[len(parts)-1]
	if utf8.RuneCountInString(last) <= 3 {
		return strings.ToUpper(last)
	}
	return capitalize(last)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[n:])
}
