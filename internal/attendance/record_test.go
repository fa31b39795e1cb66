package attendance

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordJSON(t *testing.T) {
	t.Run("decodes populated user objects", func(t *testing.T) {
		raw := `{"_id":"r1","id":"l1","user":{"_id":"u1","name":"Alice"},"day":"Monday",
			"date":"March 04 2024","type":"Medical","from":"March 04 2024 09:00","to":"March 04 2024 17:30"}`
		var r Record
		require.NoError(t, json.Unmarshal([]byte(raw), &r))
		assert.Equal(t, "r1", r.RemoteID)
		assert.Equal(t, "l1", r.ID)
		assert.Equal(t, UserRef{ID: "u1", Name: "Alice"}, r.User)
		assert.Equal(t, "Alice", r.Name)
		assert.Equal(t, Monday, r.Day)
		assert.Equal(t, Medical, r.Type)
		assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), r.Date)
		assert.Equal(t, time.Date(2024, 3, 4, 17, 30, 0, 0, time.UTC), r.To)
	})

	t.Run("decodes bare user ids and RFC 3339 times", func(t *testing.T) {
		raw := `{"_id":"r1","id":"l1","user":"u1","name":"Alice","day":"Sunday",
			"date":"2024-03-03T00:00:00Z","type":"Permission","from":"2024-03-03T08:00:00Z","to":"2024-03-03T10:00:00Z"}`
		var r Record
		require.NoError(t, json.Unmarshal([]byte(raw), &r))
		assert.Equal(t, UserRef{ID: "u1"}, r.User)
		assert.Equal(t, time.Date(2024, 3, 3, 8, 0, 0, 0, time.UTC), r.From)
	})

	t.Run("writes the owner as a bare id and human readable times", func(t *testing.T) {
		r := Record{
			ID:   "l1",
			User: UserRef{ID: "u1", Name: "Alice"},
			Name: "Alice",
			Day:  Tuesday,
			Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
			Type: EmergencyLeave,
			From: time.Date(2024, 3, 5, 8, 15, 0, 0, time.UTC),
			To:   time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC),
		}
		data, err := json.Marshal(r)
		require.NoError(t, err)

		var wire map[string]any
		require.NoError(t, json.Unmarshal(data, &wire))
		assert.Equal(t, "u1", wire["user"])
		assert.Equal(t, "March 05 2024", wire["date"])
		assert.Equal(t, "March 05 2024 08:15", wire["from"])
		assert.Equal(t, "Emergency leave", wire["type"])
		assert.NotContains(t, wire, "_id")
	})

	t.Run("round trips instants from other zones", func(t *testing.T) {
		eet := time.FixedZone("EET", 2*60*60)
		r := Record{ID: "l1", User: UserRef{ID: "u1"}, Day: Monday, Type: Medical,
			From: time.Date(2024, 3, 4, 11, 0, 0, 0, eet)}
		data, err := json.Marshal(r)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"from":"March 04 2024 09:00"`)

		var back Record
		require.NoError(t, json.Unmarshal(data, &back))
		assert.True(t, r.From.Equal(back.From))
	})

	t.Run("rejects unparseable dates", func(t *testing.T) {
		var r Record
		err := json.Unmarshal([]byte(`{"id":"l1","user":"u1","date":"yesterday"}`), &r)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := Record{ID: "l1", User: UserRef{ID: "u1"}, Day: Sunday, Type: Permission}
	require.NoError(t, valid.Validate())

	cases := map[string]func(r *Record){
		"missing id":    func(r *Record) { r.ID = "" },
		"missing owner": func(r *Record) { r.User = UserRef{} },
		"friday":        func(r *Record) { r.Day = "Friday" },
		"vacation":      func(r *Record) { r.Type = "Vacation" },
		"inverted range": func(r *Record) {
			r.From = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
			r.To = r.From.Add(-time.Hour)
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := valid
			mutate(&r)
			assert.ErrorIs(t, r.Validate(), ErrInvalidRecord)
		})
	}
}

func TestParseEnums(t *testing.T) {
	d, err := ParseDay("monday")
	require.NoError(t, err)
	assert.Equal(t, Monday, d)

	lt, err := ParseLeaveType("emergency LEAVE")
	require.NoError(t, err)
	assert.Equal(t, EmergencyLeave, lt)

	_, err = ParseDay("Saturday")
	assert.ErrorIs(t, err, ErrInvalidRecord)
	_, err = ParseLeaveType("Holiday")
	assert.ErrorIs(t, err, ErrInvalidRecord)
}
