package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexString decodes a JSON string or number into a string.
// The remote API emits numeric primary keys in some places and strings in others.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// String returns the decoded value.
func (f FlexString) String() string { return string(f) }

// Major is a single recommended major.
type Major struct {
	Name    string     `json:"major_name"`
	Score   *float64   `json:"score,omitempty"`
	Cluster string     `json:"cluster,omitempty"`
	Salary  FlexString `json:"salary,omitempty"`
}

// ScoreText formats the score with two decimals, or N/A when absent.
func (m Major) ScoreText() string {
	if m.Score == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*m.Score, 'f', 2, 64)
}

// PanelScoreText is ScoreText for the side panel, where a zero score also
// reads as N/A.
func (m Major) PanelScoreText() string {
	if m.Score != nil && *m.Score == 0 {
		return "N/A"
	}
	return m.ScoreText()
}

// RecommendationResult is the onboarding endpoint's response.
type RecommendationResult struct {
	RecommendedMajors []Major `json:"recommended_majors"`
}

// Top returns the first n majors exactly as the server ordered them.
func (r RecommendationResult) Top(n int) []Major {
	if len(r.RecommendedMajors) < n {
		n = len(r.RecommendedMajors)
	}
	return append([]Major(nil), r.RecommendedMajors[:n]...)
}
