package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"numwatch/internal/monitor"
)

func TestRenderSingle(t *testing.T) {
	t.Parallel()
	s := monitor.Site{ID: "site_1", URL: "https://one.example/", Type: monitor.TypeSingle, LastValue: "447700900123"}

	l, err := Render(s, Flags{})
	require.NoError(t, err)
	require.Len(t, l, 3)
	assert.Equal(t, Button{Text: "📋 Copy Number", Data: "copy_number_site_1"}, l[0][0])
	assert.Equal(t, Button{Text: "🔄 Update Number", Data: "update_447700900123_site_1"}, l[0][1])
	assert.Equal(t, Button{Text: "🔪 Split", Data: "split_447700900123_site_1"}, l[1][0])
	assert.Equal(t, Button{Text: "⚙️ Settings", Data: "settings_site_1"}, l[1][1])
	assert.Equal(t, "https://one.example/number/447700900123", l[2][0].URL)

	l, err = Render(s, Flags{Updated: true, Value: "+15550001"})
	require.NoError(t, err)
	assert.Equal(t, Button{Text: "✅ Updated Number", Data: "update_15550001_site_1"}, l[0][1])

	s.ButtonUpdated = true
	l, _ = Render(s, Flags{})
	assert.Equal(t, "✅ Updated Number", l[0][1].Text)
}

func TestRenderMultipleInitialRunCollapses(t *testing.T) {
	t.Parallel()
	s := monitor.Site{ID: "site_2", URL: "https://two.example/numbers/uk", Type: monitor.TypeMultiple,
		LatestValues: []string{"+447700900001", "+447700900002", "+447700900003"}}

	l, err := Render(s, Flags{InitialRun: true})
	require.NoError(t, err)
	require.Len(t, l, 3)
	require.Len(t, l[0], 1)
	assert.Equal(t, Button{Text: "+44 7700900001", Data: "number_+447700900001_site_2"}, l[0][0])
	assert.Equal(t, Button{Text: "🔄 Update Numbers", Data: "update_multi_site_2"}, l[1][0])
	assert.Equal(t, "https://two.example/numbers/uk", l[2][0].URL)
}

func TestRenderMultipleSteadyGrid(t *testing.T) {
	t.Parallel()
	s := monitor.Site{ID: "site_2", URL: "https://two.example/numbers/uk", Type: monitor.TypeMultiple,
		LatestValues: []string{"+1", "+2", "+3"}, ButtonUpdated: true}

	l, err := Render(s, Flags{})
	require.NoError(t, err)
	require.Len(t, l, 4)
	assert.Len(t, l[0], 2)
	assert.Len(t, l[1], 1)
	assert.Equal(t, "✅ Updated Numbers", l[2][0].Text)

	one, err := Render(s, Flags{Values: []string{"+9"}})
	require.NoError(t, err)
	assert.Len(t, one, 3)
}

func TestRenderNothing(t *testing.T) {
	t.Parallel()
	_, err := Render(monitor.Site{ID: "a", Type: monitor.TypeSingle}, Flags{})
	assert.ErrorIs(t, err, ErrNothingToRender)
	_, err = Render(monitor.Site{ID: "a", Type: monitor.TypeMultiple}, Flags{})
	assert.ErrorIs(t, err, ErrNothingToRender)
}

func TestSettingsAndMonitoringLayouts(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Disable Repeat Notification", SettingsLayout("site_1", true)[0][0].Text)
	assert.Equal(t, "Enable Repeat Notification", SettingsLayout("site_1", false)[0][0].Text)
	assert.Equal(t, "back_to_main_site_1", SettingsLayout("site_1", false)[2][0].Data)

	sites := []monitor.Site{
		{ID: "site_1", URL: "https://www.alpha.com", Type: monitor.TypeSingle, Enabled: true},
		{ID: "site_2", URL: "https://b.example/numbers/uk", Type: monitor.TypeMultiple},
		{ID: "site_3", URL: "https://c.example/numbers/sweden", Type: monitor.TypeMultiple, Enabled: true},
	}
	l := MonitoringLayout(sites, "site_1")
	require.Len(t, l, 3)
	assert.Equal(t, Button{Text: "Alpha", Data: "toggle_site_site_1"}, l[0][0])
	assert.Equal(t, "UK : Disabled", l[0][1].Text)
	assert.Equal(t, "Sweden", l[1][0].Text)
	assert.Equal(t, Button{Text: "« Back to Settings", Data: "settings_site_1"}, l[2][0])
}

func TestLayoutMarkupAndHash(t *testing.T) {
	t.Parallel()
	l := Layout{{{Text: "a", Data: "x"}, {Text: "web", URL: "https://x"}}}
	rm, err := l.Markup()
	require.NoError(t, err)
	require.Len(t, rm.InlineKeyboard, 1)
	assert.Equal(t, "x", rm.InlineKeyboard[0][0].Data)
	assert.Equal(t, "https://x", rm.InlineKeyboard[0][1].URL)

	assert.Equal(t, l.Hash(), Layout{{{Text: "a", Data: "x"}, {Text: "web", URL: "https://x"}}}.Hash())
	assert.NotEqual(t, l.Hash(), Single("a").Hash())
}
