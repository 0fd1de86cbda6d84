package request

import (
	"encoding/json"
	"time"
)

// DateLayout is the timestamp format Auto Export writes.
const DateLayout = "2006-01-02 15:04:05 -0700"

type Timestamp struct {
	t time.Time
}

func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{t: t}
}

func (st *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	t, err := parseTime(s)
	if err != nil {
		return err
	}
	st.t = t
	return nil
}

func (st *Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(st.t.Format(DateLayout))
}

func (st *Timestamp) ToTime() time.Time {
	return st.t
}

func (st *Timestamp) String() string {
	return st.t.Format(DateLayout)
}

// parseTime accepts the Auto Export layout and, since newer exports switched
// some fields over, RFC 3339.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err == nil {
		return t, nil
	}
	if t, rfcErr := time.Parse(time.RFC3339, s); rfcErr == nil {
		return t, nil
	}
	return time.Time{}, err
}
