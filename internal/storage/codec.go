package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const typeMultiple = "multiple"

// jsonRecord is the on-disk shape of a Record.
//
// last_number is an integer when the token is numeric, a string otherwise, or null.
// latest_numbers is written only for multiple-type sites and is never null.
type jsonRecord struct {
	LastNumber        json.RawMessage `json:"last_number"`
	LatestNumbers     *[]string       `json:"latest_numbers,omitempty"`
	Type              string          `json:"type,omitempty"`
	ImageURL          string          `json:"image_url,omitempty"`
	ButtonUpdated     bool            `json:"button_updated"`
	FirstRunCompleted *bool           `json:"first_run_completed,omitempty"`
	Enabled           *bool           `json:"enabled,omitempty"`
}

func encodeRecord(r Record) jsonRecord {
	out := jsonRecord{
		LastNumber:    encodeLastNumber(r.LastNumber),
		Type:          r.Type,
		ImageURL:      r.ImageURL,
		ButtonUpdated: r.ButtonUpdated,
		Enabled:       r.Enabled,
	}
	first := r.FirstRunCompleted
	out.FirstRunCompleted = &first
	if r.Type == typeMultiple || len(r.LatestNumbers) > 0 {
		latest := append([]string{}, r.LatestNumbers...)
		out.LatestNumbers = &latest
	}
	return out
}

func decodeRecord(in jsonRecord) (Record, error) {
	last, err := decodeLastNumber(in.LastNumber)
	if err != nil {
		return Record{}, err
	}
	r := Record{
		Type:          in.Type,
		LastNumber:    last,
		LatestNumbers: []string{},
		ImageURL:      in.ImageURL,
		ButtonUpdated: in.ButtonUpdated,
		Enabled:       in.Enabled,
	}
	if in.LatestNumbers != nil {
		r.LatestNumbers = append(r.LatestNumbers, (*in.LatestNumbers)...)
	}
	if in.FirstRunCompleted == nil {
		r.Legacy = true
	} else {
		r.FirstRunCompleted = *in.FirstRunCompleted
	}
	return r, nil
}

func encodeLastNumber(v string) json.RawMessage {
	v = strings.TrimPrefix(strings.TrimSpace(v), "+")
	if v == "" {
		return json.RawMessage("null")
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return json.RawMessage(strconv.FormatInt(n, 10))
	}
	b, _ := json.Marshal(v)
	return b
}

func decodeLastNumber(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return strings.TrimPrefix(s, "+"), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("last_number: %w", err)
	}
	return n.String(), nil
}
