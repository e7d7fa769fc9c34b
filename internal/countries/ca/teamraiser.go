package ca

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Teamraiser is one event in a getTeamraisersByInfo response. Luminate
// returns ids and dates as strings or numbers depending on the field and
// the day, so every field is read leniently.
type Teamraiser struct {
	ID        string
	Name      string
	EventURL  string
	Area      string
	EventDate string
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Teamraiser) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.ID = firstString(raw, "id", "fr_id")
	t.Name = firstString(raw, "name", "title")
	t.EventURL = firstString(raw, "event_url", "greeting_url")
	t.Area = firstString(raw, "area")
	t.EventDate = firstString(raw, "event_date", "start_date")
	return nil
}

func firstString(raw map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s := flexString(raw[k]); s != "" {
			return s
		}
	}
	return ""
}

func flexString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

// teamraiserList accepts either a single object or an array, which is how
// Luminate serializes one-element and many-element lists.
type teamraiserList []Teamraiser

// UnmarshalJSON implements json.Unmarshaler.
func (l *teamraiserList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "" || trimmed == "null":
		*l = nil
		return nil
	case strings.HasPrefix(trimmed, "["):
		var items []Teamraiser
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		var one Teamraiser
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*l = teamraiserList{one}
		return nil
	}
}

// apiResponse is the envelope of a TeamRaiser API answer.
type apiResponse struct {
	Response *struct {
		Teamraiser teamraiserList `json:"teamraiser"`
	} `json:"getTeamraisersResponse"`
	Error *struct {
		Code    interface{} `json:"code"`
		Message string      `json:"message"`
	} `json:"errorResponse"`
}
