package grid

import (
	"time"

	"absencetracker/internal/attendance"
)

// Mode is the per-row edit state.
type Mode int

const (
	View Mode = iota
	Editing
)

func (m Mode) String() string {
	if m == Editing {
		return "edit"
	}
	return "view"
}

// Action is an operation a row currently offers.
type Action string

const (
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionSave   Action = "save"
	ActionCancel Action = "cancel"
)

// Row is the rendered state of one grid line.
type Row struct {
	attendance.Record
	Mode  Mode
	IsNew bool
	Err   error // last failed save or delete for this row
}

// Actions returns the operations legal in the row's mode.
func (r Row) Actions() []Action {
	if r.Mode == Editing {
		return []Action{ActionSave, ActionCancel}
	}
	return []Action{ActionEdit, ActionDelete}
}

// Edit holds field changes for an in-progress draft. Nil fields are left as is.
type Edit struct {
	Day  *attendance.Day
	Date *time.Time
	Type *attendance.LeaveType
	From *time.Time
	To   *time.Time
}

func (e Edit) apply(r attendance.Record) attendance.Record {
	if e.Day != nil {
		r.Day = *e.Day
	}
	if e.Date != nil {
		r.Date = *e.Date
	}
	if e.Type != nil {
		r.Type = *e.Type
	}
	if e.From != nil {
		r.From = *e.From
	}
	if e.To != nil {
		r.To = *e.To
	}
	return r
}

// draft is the controller-owned union of in-progress row states:
// nil, *newDraft or *editDraft.
type draft interface {
	working() attendance.Record
	set(attendance.Record)
}

// newDraft is a row that has never been persisted.
type newDraft struct {
	rec attendance.Record
}

func (d *newDraft) working() attendance.Record { return d.rec }
func (d *newDraft) set(r attendance.Record) { d.rec = r }

// editDraft is an in-progress edit of a committed row.
type editDraft struct {
	rec attendance.Record
}

func (d *editDraft) working() attendance.Record { return d.rec }
func (d *editDraft) set(r attendance.Record) { d.rec = r }
