package attendance

// Snapshot is an immutable, versioned view of the record collection.
// The zero value is the empty collection at version 0.
type Snapshot struct {
	version uint64
	records []Record
}

// Version increases every time the collection is replaced or pruned.
func (s Snapshot) Version() uint64 { return s.version }

// Len returns the number of records.
func (s Snapshot) Len() int { return len(s.records) }

// Records returns a copy of all records.
func (s Snapshot) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// ForUser returns the records owned by userID.
func (s Snapshot) ForUser(userID string) []Record {
	var out []Record
	for _, r := range s.records {
		if r.User.ID == userID {
			out = append(out, r)
		}
	}
	return out
}

// Find looks a record up by local identity.
func (s Snapshot) Find(localID string) (Record, bool) {
	for _, r := range s.records {
		if r.ID == localID {
			return r, true
		}
	}
	return Record{}, false
}

func (s Snapshot) replaced(records []Record) Snapshot {
	owned := make([]Record, len(records))
	copy(owned, records)
	return Snapshot{version: s.version + 1, records: owned}
}

func (s Snapshot) without(remoteID string) Snapshot {
	owned := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if r.RemoteID != remoteID {
			owned = append(owned, r)
		}
	}
	return Snapshot{version: s.version + 1, records: owned}
}
