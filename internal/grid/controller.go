package grid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"absencetracker/internal/attendance"
	"absencetracker/internal/auth"
)

var (
	ErrUnknownRow        = errors.New("grid: unknown row")
	ErrIllegalTransition = errors.New("grid: illegal transition")
)

// RecordWriter persists committed rows.
type RecordWriter interface {
	Create(ctx context.Context, draft attendance.Record) error
	Update(ctx context.Context, rec attendance.Record) error
	Delete(ctx context.Context, localID string) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides time.Now for the default times of a new row.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithIDs overrides the local id generator used by Add.
func WithIDs(next func() string) Option {
	return func(c *Controller) { c.newID = next }
}

// WithLogger sets the logger for failed writes.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// OnError registers fn to be told about failed saves and deletes.
func OnError(fn func(id string, err error)) Option {
	return func(c *Controller) { c.onError = fn }
}

type entry struct {
	rec   attendance.Record
	mode  Mode
	isNew bool
	draft draft
	err   error
}

func (e *entry) row() Row {
	rec := e.rec
	if e.draft != nil {
		rec = e.draft.working()
	}
	return Row{Record: rec, Mode: e.mode, IsNew: e.isNew, Err: e.err}
}

// Controller is the per-row edit state machine of the absence grid.
type Controller struct {
	writer  RecordWriter
	now     func() time.Time
	newID   func() string
	log     *slog.Logger
	onError func(id string, err error)

	mu    sync.Mutex
	rows  []*entry
	focus string
}

// New creates an empty grid that writes through w.
func New(w RecordWriter, opts ...Option) *Controller {
	c := &Controller{
		writer: w,
		now:    time.Now,
		newID:  uuid.NewString,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sync reseeds committed rows from records. Rows with a pending draft keep
// their draft; unsaved new rows stay at the end.
func (c *Controller) Sync(records []attendance.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make(map[string]*entry)
	var fresh []*entry
	for _, e := range c.rows {
		switch e.draft.(type) {
		case *editDraft:
			pending[e.rec.ID] = e
		case *newDraft:
			fresh = append(fresh, e)
		}
	}
	rows := make([]*entry, 0, len(records)+len(fresh))
	for _, rec := range records {
		if e, ok := pending[rec.ID]; ok {
			e.rec = rec
			rows = append(rows, e)
			continue
		}
		rows = append(rows, &entry{rec: rec, mode: View})
	}
	c.rows = append(rows, fresh...)
}

// Rows returns the render view, drafts merged over committed data.
func (c *Controller) Rows() []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Row, len(c.rows))
	for i, e := range c.rows {
		out[i] = e.row()
	}
	return out
}

// Row returns a single rendered row.
func (c *Controller) Row(id string) (Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, e, err := c.lookup(id)
	if err != nil {
		return Row{}, err
	}
	return e.row(), nil
}

// Focus returns the row that should receive input, if any.
func (c *Controller) Focus() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focus, c.focus != ""
}

// Actions returns the operations legal for the row right now.
func (c *Controller) Actions(id string) ([]Action, error) {
	r, err := c.Row(id)
	if err != nil {
		return nil, err
	}
	return r.Actions(), nil
}

// Add appends a new row in edit mode owned by user and focuses it.
func (c *Controller) Add(user auth.Identity) string {
	now := c.now()
	start := now.Truncate(time.Minute)
	rec := attendance.Record{
		ID:   c.newID(),
		User: attendance.UserRef{ID: user.ID, Name: user.Name},
		Name: user.Name,
		Day:  attendance.Sunday,
		Date: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		Type: attendance.Permission,
		From: start,
		To:   start,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, &entry{rec: rec, mode: Editing, isNew: true, draft: &newDraft{rec: rec}})
	c.focus = rec.ID
	return rec.ID
}

// Edit switches a row from view to edit without touching its data.
func (c *Controller) Edit(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, e, err := c.lookup(id)
	if err != nil {
		return err
	}
	if e.mode != View {
		return fmt.Errorf("edit %s: %w: row is already in %s mode", id, ErrIllegalTransition, e.mode)
	}
	e.mode = Editing
	e.draft = &editDraft{rec: e.rec}
	c.focus = id
	return nil
}

// Change applies ed to the row's draft.
func (c *Controller) Change(id string, ed Edit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, e, err := c.lookup(id)
	if err != nil {
		return err
	}
	if e.mode != Editing {
		return fmt.Errorf("change %s: %w: row is not being edited", id, ErrIllegalTransition)
	}
	e.draft.set(ed.apply(e.draft.working()))
	return nil
}

// Cancel leaves edit mode without a remote call. A new row is removed, an
// existing one reverts to its committed data.
func (c *Controller) Cancel(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, e, err := c.lookup(id)
	if err != nil {
		return err
	}
	if e.mode != Editing {
		return fmt.Errorf("cancel %s: %w: row is not being edited", id, ErrIllegalTransition)
	}
	if _, ok := e.draft.(*newDraft); ok {
		c.remove(i)
		return nil
	}
	e.mode = View
	e.draft = nil
	c.clearFocus(id)
	return nil
}

// Save commits the draft into the row, returns it to view mode and then
// creates or updates it through the writer. The row stops being new before
// the write is attempted.
func (c *Controller) Save(ctx context.Context, id string) error {
	c.mu.Lock()
	_, e, err := c.lookup(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if e.mode != Editing {
		c.mu.Unlock()
		return fmt.Errorf("save %s: %w: row is not being edited", id, ErrIllegalTransition)
	}
	_, created := e.draft.(*newDraft)
	e.rec = e.draft.working()
	e.draft = nil
	e.mode = View
	e.isNew = false
	e.err = nil
	rec := e.rec
	c.clearFocus(id)
	c.mu.Unlock()

	op := "update"
	if created {
		op = "create"
		err = c.writer.Create(ctx, rec)
	} else {
		err = c.writer.Update(ctx, rec)
	}
	if err != nil {
		err = fmt.Errorf("save %s: %w", id, err)
		c.fail(id, op, err)
		return err
	}
	return nil
}

// Delete removes a row in view mode from the grid and then from the store.
func (c *Controller) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	i, e, err := c.lookup(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if e.mode != View {
		c.mu.Unlock()
		return fmt.Errorf("delete %s: %w: row is being edited", id, ErrIllegalTransition)
	}
	c.remove(i)
	c.mu.Unlock()

	if err := c.writer.Delete(ctx, id); err != nil {
		err = fmt.Errorf("delete %s: %w", id, err)
		c.fail(id, "delete", err)
		return err
	}
	return nil
}

func (c *Controller) fail(id, op string, err error) {
	c.log.Warn("grid write failed", slog.String("row", id), slog.String("op", op), slog.String("error", err.Error()))
	c.mu.Lock()
	if _, e, lerr := c.lookup(id); lerr == nil {
		e.err = err
	}
	c.mu.Unlock()
	if c.onError != nil {
		c.onError(id, err)
	}
}

func (c *Controller) lookup(id string) (int, *entry, error) {
	for i, e := range c.rows {
		if e.rec.ID == id {
			return i, e, nil
		}
	}
	return -1, nil, fmt.Errorf("%w: %s", ErrUnknownRow, id)
}

func (c *Controller) remove(i int) {
	c.clearFocus(c.rows[i].rec.ID)
	c.rows = append(c.rows[:i], c.rows[i+1:]...)
}

func (c *Controller) clearFocus(id string) {
	if c.focus == id {
		c.focus = ""
	}
}
