package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"numwatch/internal/monitor"
	"numwatch/pkg/tgui"
)

// countryCodes are tried in order; the first prefix match wins.
var countryCodes = []string{"1", "44", "46", "43", "358", "386"}

func splitCode(v string) (code, rest string) {
	digits := strings.TrimPrefix(strings.TrimSpace(v), "+")
	for _, c := range countryCodes {
		if strings.HasPrefix(digits, c) {
			return c, digits[len(c):]
		}
	}
	return "", digits
}

// FormatPhone renders "+CC rest" for known country codes and "+number" otherwise.
func FormatPhone(v string) string {
	code, rest := splitCode(v)
	if code == "" {
		return "+" + rest
	}
	return "+" + code + " " + rest
}

// RemoveCode strips the "+" and a known country code.
func RemoveCode(v string) string {
	_, rest := splitCode(v)
	return rest
}

// FormatTime renders whole seconds as "HH hrs : MM min : SS sec", omitting leading zero units.
func FormatTime(d time.Duration) string {
	secs := int64(d.Round(time.Second) / time.Second)
	if secs < 0 {
		secs = 0
	}
	h, m, s := secs/3600, secs%3600/60, secs%60
	var b strings.Builder
	if h > 0 {
		fmt.Fprintf(&b, "%02d hrs : ", h)
	}
	if h > 0 || m > 0 {
		fmt.Fprintf(&b, "%02d min : ", m)
	}
	fmt.Fprintf(&b, "%02d sec", s)
	return b.String()
}

// Caption is the notification body for a record.
func Caption(r Record) string {
	b := tgui.New()
	if !r.Multiple {
		return b.Title("🎁", "New Number Added").
			Blank().
			RawLine(tgui.Code(FormatPhone(r.Value)) + " check it out! 💖").
			Build().Text
	}
	b.Title("🎁", "New Numbers Added").Blank()
	if r.InitialRun || len(r.Values) <= 1 {
		b.RawLine(tgui.Code(FormatPhone(r.Value)) + " check it out! 💖")
	} else {
		b.RawLine("Found " + tgui.Code(strconv.Itoa(len(r.Values))) + " numbers, check them out! 💖")
	}
	return b.Build().Text
}

// CountdownCaption appends the remaining time to the caption.
func CountdownCaption(r Record, remaining time.Duration) string {
	return Caption(r) + "\n\n⏱ Next notification in: " + tgui.B(FormatTime(remaining)).String()
}

// recordFor snapshots what a notification for site shows.
func recordFor(s monitor.Site, initial bool) Record {
	r := Record{
		SiteID:     s.ID,
		Multiple:   s.Type == monitor.TypeMultiple,
		InitialRun: initial && s.Type == monitor.TypeMultiple,
		Values:     s.Values(),
		ImageURL:   s.ImageURL,
	}
	r.Value = headline(s)
	return r
}

// headline is the single value a collapsed notification shows: the confirmed
// value for single pages and the newest value for lists.
func headline(s monitor.Site) string {
	if s.Type == monitor.TypeMultiple {
		if vs := s.Values(); len(vs) > 0 {
			return vs[0]
		}
	}
	return monitor.Prefixed(s.LastValue)
}
