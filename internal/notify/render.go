package notify

import (
	"errors"
	"strings"

	"github.com/cespare/xxhash/v2"
	tele "gopkg.in/telebot.v4"

	"numwatch/internal/monitor"
	"numwatch/pkg/tgui"
)

// Callback data prefixes.
const (
	ActionCopy            = "copy_"
	ActionUpdate          = "update_"
	ActionUpdateMulti     = "update_multi_"
	ActionSettings        = "settings_"
	ActionSettingsMonitor = "settings_monitoring_"
	ActionToggleSite      = "toggle_site_"
	ActionToggleRepeat    = "toggle_repeat_"
	ActionBackToMain      = "back_to_main_"
	ActionSplit           = "split_"
	ActionNumber          = "number_"
	ActionNone            = "none"
)

var ErrNothingToRender = errors.New("nothing to render")

// Button is one inline button: callback Data or a URL.
type Button struct {
	Text string
	Data string
	URL  string
}

// Layout is an inline keyboard as rows of buttons.
type Layout [][]Button

// Flags adjust how a notification keyboard is drawn.
// Empty Value/Values fall back to the site's stored values.
type Flags struct {
	Updated    bool
	InitialRun bool
	Value      string
	Values     []string
}

// Render builds the notification keyboard of a site.
func Render(s monitor.Site, f Flags) (Layout, error) {
	updated := f.Updated || s.ButtonUpdated
	if s.Type == monitor.TypeMultiple {
		return renderList(s, f, updated)
	}

	v := monitor.NormalizeValue(f.Value)
	if v == "" {
		v = s.LastValue
	}
	if v == "" {
		return nil, ErrNothingToRender
	}
	update := "🔄 Update Number"
	if updated {
		update = "✅ Updated Number"
	}
	l := Layout{
		{
			{Text: "📋 Copy Number", Data: ActionCopy + "number_" + s.ID},
			{Text: update, Data: ActionUpdate + v + "_" + s.ID},
		},
		{
			{Text: "🔪 Split", Data: ActionSplit + v + "_" + s.ID},
			{Text: "⚙️ Settings", Data: ActionSettings + s.ID},
		},
	}
	if s.URL != "" {
		l = append(l, []Button{{Text: "🌐 Visit Webpage", URL: strings.TrimRight(s.URL, "/") + "/number/" + v}})
	}
	return l, nil
}

func renderList(s monitor.Site, f Flags, updated bool) (Layout, error) {
	values := f.Values
	if len(values) == 0 {
		values = s.Values()
	}
	if len(values) == 0 {
		return nil, ErrNothingToRender
	}

	var l Layout
	if f.InitialRun || len(values) <= 1 {
		head := values[0]
		if f.Value != "" {
			head = f.Value
		}
		l = append(l, []Button{numberButton(head, s.ID)})
	} else {
		for i := 0; i < len(values); i += 2 {
			row := []Button{numberButton(values[i], s.ID)}
			if i+1 < len(values) {
				row = append(row, numberButton(values[i+1], s.ID))
			}
			l = append(l, row)
		}
	}

	update := "🔄 Update Numbers"
	if updated {
		update = "✅ Updated Numbers"
	}
	l = append(l, []Button{
		{Text: update, Data: ActionUpdateMulti + s.ID},
		{Text: "⚙️ Settings", Data: ActionSettings + s.ID},
	})
	if s.URL != "" {
		l = append(l, []Button{{Text: "🌐 Visit Webpage", URL: s.URL}})
	}
	return l, nil
}

func numberButton(raw, siteID string) Button {
	return Button{Text: FormatPhone(raw), Data: ActionNumber + raw + "_" + siteID}
}

// SettingsLayout is the per-notification settings keyboard.
func SettingsLayout(siteID string, repeatOn bool) Layout {
	repeat := "Enable"
	if repeatOn {
		repeat = "Disable"
	}
	return Layout{
		{{Text: repeat + " Repeat Notification", Data: ActionToggleRepeat + siteID}},
		{{Text: "Stop Monitoring", Data: ActionSettingsMonitor + siteID}},
		{{Text: "« Back", Data: ActionBackToMain + siteID}},
	}
}

// MonitoringLayout lists every site two per row with its enable state.
func MonitoringLayout(sites []monitor.Site, backID string) Layout {
	var l Layout
	var row []Button
	for _, s := range sites {
		name := s.DisplayName()
		if !s.Enabled {
			name += " : Disabled"
		}
		row = append(row, Button{Text: name, Data: ActionToggleSite + s.ID})
		if len(row) == 2 {
			l = append(l, row)
			row = nil
		}
	}
	if len(row) > 0 {
		l = append(l, row)
	}
	return append(l, []Button{{Text: "« Back to Settings", Data: ActionSettings + backID}})
}

// Single is a one-button placeholder keyboard used by animations.
func Single(text string) Layout {
	return Layout{{{Text: text, Data: ActionNone}}}
}

// Markup converts the layout to a telebot keyboard.
func (l Layout) Markup() (*tele.ReplyMarkup, error) {
	kb := tgui.NewInline()
	for _, row := range l {
		btns := make([]tele.Btn, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				btns = append(btns, tgui.URLBtn(b.Text, b.URL))
			} else {
				btns = append(btns, tgui.Btn(b.Text, b.Data))
			}
		}
		kb.Row(btns...)
	}
	return kb.Markup(), kb.Err()
}

// Hash identifies the layout content for idempotent edits.
func (l Layout) Hash() uint64 {
	d := xxhash.New()
	for _, row := range l {
		for _, b := range row {
			_, _ = d.WriteString(b.Text)
			_, _ = d.WriteString("\x1f")
			_, _ = d.WriteString(b.Data)
			_, _ = d.WriteString("\x1f")
			_, _ = d.WriteString(b.URL)
			_, _ = d.WriteString("\x1e")
		}
		_, _ = d.WriteString("\x1d")
	}
	return d.Sum64()
}
