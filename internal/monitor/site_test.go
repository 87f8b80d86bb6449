package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeValue(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, want string }{
		{"+4477001122", "4477001122"},
		{" 0123 ", "123"},
		{"abc", "abc"},
		{"+abc", "abc"},
		{"", ""},
		{" + ", "+"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeValue(tc.in), tc.in)
	}
	assert.Equal(t, "", Prefixed(""))
	assert.Equal(t, "+5", Prefixed("5"))
}

func TestSingleSameTokenNotifiesOnce(t *testing.T) {
	t.Parallel()
	s := &Site{ID: "site_1", Type: TypeSingle, Enabled: true}

	d := s.ProcessUpdate(Text("+4477001122"), "https://x/flag.png")
	assert.True(t, d.Notify)
	assert.True(t, d.Initial)
	assert.Equal(t, "4477001122", s.LastValue)
	assert.True(t, s.FirstRunCompleted)

	for range 3 {
		d = s.ProcessUpdate(Text("4477001122"), "https://x/flag.png")
		assert.False(t, d.Notify)
		assert.False(t, d.Changed)
	}

	d = s.ProcessUpdate(Text("+4477009999"), "")
	assert.True(t, d.Notify)
	assert.False(t, d.Initial)
}

func TestSingleNonNumericToken(t *testing.T) {
	t.Parallel()
	s := &Site{Type: TypeSingle, Enabled: true}
	assert.True(t, s.ProcessUpdate(Text("+N/A"), "").Notify)
	assert.Equal(t, "N/A", s.LastValue)
	assert.False(t, s.ProcessUpdate(Text("N/A"), "").Notify)

	bare := &Site{Type: TypeSingle, Enabled: true}
	assert.True(t, bare.ProcessUpdate(Text("+"), "").Notify)
	assert.Equal(t, "+", bare.LastValue)
	assert.False(t, bare.ProcessUpdate(Text("+"), "").Notify)
}

func TestEmptyDataIsIgnored(t *testing.T) {
	t.Parallel()
	s := &Site{Type: TypeUnknown, Enabled: true}
	d := s.ProcessUpdate(Content{}, "img")
	assert.Equal(t, Decision{}, d)
	assert.Equal(t, TypeUnknown, s.Type)
	assert.False(t, s.FirstRunCompleted)
	assert.Equal(t, Decision{}, s.ProcessUpdate(Text("  "), ""))
}

func TestMultipleSameListTwice(t *testing.T) {
	t.Parallel()
	s := &Site{Type: TypeMultiple, Enabled: true}

	d := s.ProcessUpdate(List("+5", "+9"), "img")
	assert.True(t, d.Notify)
	assert.True(t, d.Initial)
	assert.Equal(t, "", s.LastValue)
	assert.Equal(t, []string{"+5", "+9"}, s.LatestValues)

	d = s.ProcessUpdate(List("+5", "+9"), "img")
	assert.False(t, d.Notify)
	assert.False(t, d.Changed)
}

func TestMultipleReorderNotifies(t *testing.T) {
	t.Parallel()
	s := &Site{Type: TypeMultiple, Enabled: true, LastValue: "5", LatestValues: []string{"+5", "+9"}, FirstRunCompleted: true, ButtonUpdated: true}

	d := s.ProcessUpdate(List("+9", "+5"), "img2")
	assert.True(t, d.Notify)
	assert.False(t, d.Initial)
	assert.Equal(t, []string{"+9", "+5"}, s.LatestValues)
	assert.Equal(t, "img2", s.ImageURL)
	assert.False(t, s.ButtonUpdated)
}

func TestMultipleAppendBehindHeadIsSilent(t *testing.T) {
	t.Parallel()
	s := &Site{Type: TypeMultiple, Enabled: true, LastValue: "5", LatestValues: []string{"+5", "+9"}, FirstRunCompleted: true, ButtonUpdated: true}

	d := s.ProcessUpdate(List("+5", "+9", "+1"), "")
	assert.False(t, d.Notify)
	assert.True(t, d.Changed)
	assert.Equal(t, []string{"+5", "+9", "+1"}, s.LatestValues)
	assert.True(t, s.ButtonUpdated)
}

func TestMultipleConfirmedValueGone(t *testing.T) {
	t.Parallel()
	s := &Site{Type: TypeMultiple, Enabled: true, LastValue: "5", LatestValues: []string{"+5"}, FirstRunCompleted: true}
	assert.True(t, s.ProcessUpdate(List("+7", "+8"), "").Notify)
}

func TestTypeResolution(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		data Content
		want ContentType
	}{
		{"text", Text("+1"), TypeSingle},
		{"one element list", List("+1"), TypeSingle},
		{"list", List("+1", "+2"), TypeMultiple},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := &Site{Enabled: true}
			s.ProcessUpdate(tc.data, "")
			assert.Equal(t, tc.want, s.Type)

			// Resolved once; later data never changes it.
			s.ProcessUpdate(List("+3", "+4", "+5"), "")
			assert.Equal(t, tc.want, s.Type)
		})
	}
}

func TestDisableEnableActsAsNewSite(t *testing.T) {
	t.Parallel()
	s := &Site{Type: TypeMultiple, Enabled: true}
	s.ProcessUpdate(List("+5", "+9"), "img")
	s.ConfirmLatest()
	require.Equal(t, "5", s.LastValue)

	s.SetEnabled(false)
	assert.Equal(t, "5", s.LastValue)
	s.SetEnabled(true)

	fresh := &Site{Type: TypeMultiple, Enabled: true, LatestValues: []string{}}
	assert.Equal(t, fresh.Clone(), s.Clone())

	d := s.ProcessUpdate(List("+5", "+9"), "img")
	assert.True(t, d.Notify)
	assert.True(t, d.Initial)
}

func TestConfirm(t *testing.T) {
	t.Parallel()
	s := &Site{Type: TypeSingle, Enabled: true}
	s.Confirm("+123")
	assert.Equal(t, "123", s.LastValue)
	assert.True(t, s.ButtonUpdated)

	m := &Site{Type: TypeMultiple, LatestValues: []string{"+9", "+5"}}
	m.ConfirmLatest()
	assert.Equal(t, "9", m.LastValue)
	assert.Equal(t, []string{"+9", "+5"}, m.Values())
}

func TestDisplayName(t *testing.T) {
	t.Parallel()
	cases := []struct {
		url  string
		typ  ContentType
		want string
	}{
		{"https://www.receive-sms.com/", TypeSingle, "Receive-sms"},
		{"https://example.org/numbers/uk", TypeMultiple, "UK"},
		{"https://example.org/numbers/sweden/", TypeMultiple, "Sweden"},
		{"", TypeSingle, "Unknown"},
	}
	for _, tc := range cases {
		s := Site{URL: tc.url, Type: tc.typ}
		assert.Equal(t, tc.want, s.DisplayName(), tc.url)
	}
}
