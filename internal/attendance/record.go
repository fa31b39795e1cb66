package attendance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Wire layouts for date and clock fields.
const (
	DateLayout    = "January 02 2006"
	InstantLayout = "January 02 2006 15:04"
)

var parseLayouts = []string{InstantLayout, DateLayout, time.RFC3339Nano, "2006-01-02"}

// Day is the weekday an absence falls on.
type Day string

const (
	Sunday    Day = "Sunday"
	Monday    Day = "Monday"
	Tuesday   Day = "Tuesday"
	Wednesday Day = "Wednesday"
	Thursday  Day = "Thursday"
)

// Days lists the working days in display order.
var Days = []Day{Sunday, Monday, Tuesday, Wednesday, Thursday}

// Valid reports whether d is one of Days.
func (d Day) Valid() bool {
	for _, v := range Days {
		if d == v {
			return true
		}
	}
	return false
}

// ParseDay matches s against Days, ignoring case.
func ParseDay(s string) (Day, error) {
	for _, v := range Days {
		if strings.EqualFold(string(v), strings.TrimSpace(s)) {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: unknown day %q", ErrInvalidRecord, s)
}

// LeaveType classifies an absence.
type LeaveType string

const (
	Permission     LeaveType = "Permission"
	Medical        LeaveType = "Medical"
	EmergencyLeave LeaveType = "Emergency leave"
)

// LeaveTypes lists the leave types in display order.
var LeaveTypes = []LeaveType{Permission, Medical, EmergencyLeave}

// Valid reports whether t is one of LeaveTypes.
func (t LeaveType) Valid() bool {
	for _, v := range LeaveTypes {
		if t == v {
			return true
		}
	}
	return false
}

// ParseLeaveType matches s against LeaveTypes, ignoring case.
func ParseLeaveType(s string) (LeaveType, error) {
	for _, v := range LeaveTypes {
		if strings.EqualFold(string(v), strings.TrimSpace(s)) {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: unknown leave type %q", ErrInvalidRecord, s)
}

// UserRef points at the owning user. The authority sends either the bare id
// or a populated {_id, name} object; writes always send the bare id.
type UserRef struct {
	ID   string
	Name string
}

func (u UserRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.ID)
}

func (u *UserRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*u = UserRef{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*u = UserRef{ID: id}
		return nil
	}
	var obj struct {
		ID   string `json:"_id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode user: %w", err)
	}
	*u = UserRef{ID: obj.ID, Name: obj.Name}
	return nil
}

// Record is a single absence entry.
type Record struct {
	ID       string // local identity, assigned client side
	RemoteID string // assigned by the authority on first persist
	User     UserRef
	Name     string
	Day      Day
	Date     time.Time
	Type     LeaveType
	From     time.Time
	To       time.Time
}

type wireRecord struct {
	RemoteID string    `json:"_id,omitempty"`
	ID       string    `json:"id"`
	User     UserRef   `json:"user"`
	Name     string    `json:"name,omitempty"`
	Day      Day       `json:"day"`
	Date     string    `json:"date"`
	Type     LeaveType `json:"type"`
	From     string    `json:"from"`
	To       string    `json:"to"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRecord{
		RemoteID: r.RemoteID,
		ID:       r.ID,
		User:     r.User,
		Name:     r.Name,
		Day:      r.Day,
		Date:     formatTime(r.Date, DateLayout),
		Type:     r.Type,
		From:     formatTime(r.From, InstantLayout),
		To:       formatTime(r.To, InstantLayout),
	})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	date, err := ParseTime(w.Date)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	from, err := ParseTime(w.From)
	if err != nil {
		return fmt.Errorf("from: %w", err)
	}
	to, err := ParseTime(w.To)
	if err != nil {
		return fmt.Errorf("to: %w", err)
	}
	name := w.Name
	if name == "" {
		name = w.User.Name
	}
	*r = Record{
		ID:       w.ID,
		RemoteID: w.RemoteID,
		User:     w.User,
		Name:     name,
		Day:      w.Day,
		Date:     date,
		Type:     w.Type,
		From:     from,
		To:       to,
	}
	return nil
}

// Validate checks the closed enumerations and identity fields.
func (r Record) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("%w: missing local id", ErrInvalidRecord)
	case r.User.ID == "":
		return fmt.Errorf("%w: missing owner", ErrInvalidRecord)
	case !r.Day.Valid():
		return fmt.Errorf("%w: unknown day %q", ErrInvalidRecord, r.Day)
	case !r.Type.Valid():
		return fmt.Errorf("%w: unknown leave type %q", ErrInvalidRecord, r.Type)
	case !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From):
		return fmt.Errorf("%w: to before from", ErrInvalidRecord)
	}
	return nil
}

// withEditable copies the user-editable columns of e onto r.
func (r Record) withEditable(e Record) Record {
	r.Day = e.Day
	r.Date = e.Date
	r.Type = e.Type
	r.From = e.From
	r.To = e.To
	return r
}

// ParseTime accepts the wire layouts and RFC 3339. Empty input is the zero time.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

// formatTime renders t in UTC, the zone ParseTime assumes for zoneless layouts.
func formatTime(t time.Time, layout string) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(layout)
}
