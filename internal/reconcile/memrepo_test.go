package reconcile_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/okian/lanscore/internal/adapters/repository"
	"github.com/okian/lanscore/internal/domain/model"
	"github.com/okian/lanscore/internal/reconcile"
)

// memState is the part of memRepo a transaction may change.
type memState struct {
	events []model.Event
	slots  []model.Timeslot
	scores []model.Score
	nextID int64
}

func (s memState) clone() memState {
	return memState{
		events: append([]model.Event(nil), s.events...),
		slots:  append([]model.Timeslot(nil), s.slots...),
		scores: append([]model.Score(nil), s.scores...),
		nextID: s.nextID,
	}
}

// memRepo is a transactional in-memory repository.Repository.
type memRepo struct {
	mu        sync.Mutex
	lans      []model.Lan
	attendees map[int64]map[int64]bool
	acts      []model.GameActivity
	state     memState

	lanErr        error
	listErr       error
	failScoresFor map[int64]error
	includeNoGame bool
	transactions  int
}

func newMemRepo() *memRepo {
	return &memRepo{
		attendees:     map[int64]map[int64]bool{},
		failScoresFor: map[int64]error{},
		state:         memState{nextID: 1},
	}
}

func (r *memRepo) id() int64 {
	r.state.nextID++
	return r.state.nextID
}

func (r *memRepo) addLan(active bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.id()
	r.lans = append(r.lans, model.Lan{ID: id, Name: "lan", Active: active})
	r.attendees[id] = map[int64]bool{}
	return id
}

func (r *memRepo) attend(lanID int64, users ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range users {
		r.attendees[lanID][u] = true
	}
}

func (r *memRepo) addEvent(e model.Event) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = r.id()
	r.state.events = append(r.state.events, e)
	return e.ID
}

func (r *memRepo) addSlot(eventID int64, at time.Time, processed bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.id()
	r.state.slots = append(r.state.slots, model.Timeslot{ID: id, EventID: eventID, Time: at, IsProcessed: processed})
	return id
}

func (r *memRepo) play(user, game int64, start time.Time, end *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acts = append(r.acts, model.GameActivity{ID: r.id(), UserID: user, GameID: game, StartedAt: start, EndedAt: end})
}

func (r *memRepo) event(id int64) model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.state.events {
		if e.ID == id {
			e.Timeslots = r.slotsOf(r.state, id)
			return e
		}
	}
	return model.Event{}
}

func (r *memRepo) scores(eventID int64) []model.Score {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Score
	for _, s := range r.state.scores {
		if s.EventID == eventID {
			out = append(out, s)
		}
	}
	return out
}

func (r *memRepo) slotsOf(st memState, eventID int64) []model.Timeslot {
	var out []model.Timeslot
	for _, s := range st.slots {
		if s.EventID == eventID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

func (r *memRepo) ActiveLans(context.Context) ([]model.Lan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lanErr != nil {
		return nil, r.lanErr
	}
	var out []model.Lan
	for _, l := range r.lans {
		if l.Active {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memRepo) ListIncompleteCommunityEvents(_ context.Context, lanID int64, width time.Duration, now time.Time) ([]model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []model.Event
	for _, e := range r.state.events {
		if e.LanID != lanID || e.IsProcessed || e.Points <= 0 || e.StartTime.After(now) {
			continue
		}
		if e.GameID == nil && !r.includeNoGame {
			continue
		}
		slots := r.slotsOf(r.state, e.ID)
		processed := 0
		for _, s := range slots {
			if s.IsProcessed {
				processed++
			}
		}
		if processed >= int(e.Duration()/width) {
			continue
		}
		e.Timeslots = slots
		out = append(out, e)
	}
	return out, nil
}

func (r *memRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions++
	tx := &memTx{repo: r, st: r.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = tx.st
	return nil
}

type memTx struct {
	repo *memRepo
	st   memState
}

func (t *memTx) InsertTimeslots(_ context.Context, eventID int64, times []time.Time) ([]model.Timeslot, error) {
	var out []model.Timeslot
	for _, at := range times {
		for _, s := range t.st.slots {
			if s.EventID == eventID && s.Time.Equal(at) {
				return nil, errors.New("unique constraint failed: timeslots.event_id, timeslots.time")
			}
		}
		t.st.nextID++
		slot := model.Timeslot{ID: t.st.nextID, EventID: eventID, Time: at}
		t.st.slots = append(t.st.slots, slot)
		out = append(out, slot)
	}
	return out, nil
}

func (t *memTx) TimeslotActivities(_ context.Context, lanID int64, event *model.Event, slot model.Timeslot, slotEnd time.Time) ([]model.GameActivity, error) {
	var out []model.GameActivity
	for _, a := range t.repo.acts {
		if !t.repo.attendees[lanID][a.UserID] || a.GameID != *event.GameID {
			continue
		}
		if !a.StartedAt.Before(slotEnd) || (a.EndedAt != nil && !a.EndedAt.After(slot.Time)) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (t *memTx) InsertScoresIgnoreConflict(_ context.Context, rows []model.Score) ([]model.Score, error) {
	var inserted []model.Score
	for _, row := range rows {
		if err := t.repo.failScoresFor[row.EventID]; err != nil {
			return nil, err
		}
		dup := false
		for _, s := range t.st.scores {
			if s.TimeslotID == row.TimeslotID && s.UserID == row.UserID {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		t.st.nextID++
		row.ID = t.st.nextID
		t.st.scores = append(t.st.scores, row)
		inserted = append(inserted, row)
	}
	return inserted, nil
}

func (t *memTx) MarkTimeslotsProcessed(_ context.Context, eventID int64, ids []int64) error {
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	for i := range t.st.slots {
		if t.st.slots[i].EventID == eventID && want[t.st.slots[i].ID] {
			t.st.slots[i].IsProcessed = true
		}
	}
	return nil
}

func (t *memTx) MarkEventProcessed(_ context.Context, eventID int64) error {
	for i := range t.st.events {
		if t.st.events[i].ID == eventID {
			t.st.events[i].IsProcessed = true
		}
	}
	return nil
}

// recordingNotifier captures notification calls.
type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]model.Score
	ids   []string
	err   error
}

func (n *recordingNotifier) NotifyNewScores(ctx context.Context, scores []model.Score) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, scores)
	n.ids = append(n.ids, reconcile.PassID(ctx))
	return n.err
}
