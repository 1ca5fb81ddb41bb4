package calendar

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/tempo-agent/tempo/internal/types"
)

// fileDoc is the on-disk YAML shape.
type fileDoc struct {
	Events []fileEvent `yaml:"events"`
}

type fileEvent struct {
	UID          string   `yaml:"uid"`
	CalendarID   string   `yaml:"calendar_id"`
	Title        string   `yaml:"title"`
	Start        string   `yaml:"start"`
	End          string   `yaml:"end"`
	Attendees    []string `yaml:"attendees,omitempty"`
	External     []string `yaml:"external,omitempty"`
	RecurrenceID string   `yaml:"recurrence_id,omitempty"`
	Location     string   `yaml:"location,omitempty"`
}

// FileAdapter is a calendar backed by one YAML file. It exists so the
// whole pipeline can run locally and in tests without a remote backend;
// timestamps are RFC 3339.
type FileAdapter struct {
	mu   sync.Mutex
	path string
}

// NewFileAdapter opens (creating if needed) the YAML calendar at path.
func NewFileAdapter(path string) (*FileAdapter, error) {
	a := &FileAdapter{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := a.save(&fileDoc{}); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *FileAdapter) load() (*fileDoc, error) {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("read calendar file: %w", err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse calendar file: %w", err)
	}
	return &doc, nil
}

func (a *FileAdapter) save(doc *fileDoc) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	tmp := a.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, a.path)
}

// Events returns events intersecting [from, to), sorted by start.
// Events with unreadable timestamps are skipped rather than failing the
// whole snapshot.
func (a *FileAdapter) Events(_ context.Context, from, to time.Time) ([]types.CalendarEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	doc, err := a.load()
	if err != nil {
		return nil, err
	}
	var out []types.CalendarEvent
	for _, fe := range doc.Events {
		ev, err := fe.toEvent()
		if err != nil {
			continue
		}
		if ev.End.Before(from) || !ev.Start.Before(to) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (fe fileEvent) toEvent() (types.CalendarEvent, error) {
	start, err := time.Parse(time.RFC3339, fe.Start)
	if err != nil {
		return types.CalendarEvent{}, err
	}
	end, err := time.Parse(time.RFC3339, fe.End)
	if err != nil {
		return types.CalendarEvent{}, err
	}
	external := make(map[string]bool, len(fe.External))
	for _, e := range fe.External {
		external[e] = true
	}
	attendees := make([]types.Attendee, 0, len(fe.Attendees))
	for _, email := range fe.Attendees {
		attendees = append(attendees, types.Attendee{Email: email, External: external[email]})
	}
	return types.CalendarEvent{
		UID:          fe.UID,
		CalendarID:   fe.CalendarID,
		Title:        fe.Title,
		Start:        start,
		End:          end,
		Attendees:    attendees,
		RecurrenceID: fe.RecurrenceID,
		Location:     fe.Location,
	}, nil
}

// CreateEvent appends one event and returns its generated uid.
func (a *FileAdapter) CreateEvent(_ context.Context, calendarID, title string, start, end time.Time) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	doc, err := a.load()
	if err != nil {
		return "", err
	}
	uid := uuid.NewString()
	doc.Events = append(doc.Events, fileEvent{
		UID:        uid,
		CalendarID: calendarID,
		Title:      title,
		Start:      start.Format(time.RFC3339),
		End:        end.Format(time.RFC3339),
	})
	if err := a.save(doc); err != nil {
		return "", err
	}
	return uid, nil
}

// DeleteEvent removes the event with uid from the given calendar.
func (a *FileAdapter) DeleteEvent(_ context.Context, calendarID, uid string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	doc, err := a.load()
	if err != nil {
		return err
	}
	kept := doc.Events[:0]
	found := false
	for _, fe := range doc.Events {
		if fe.UID == uid && fe.CalendarID == calendarID {
			found = true
			continue
		}
		kept = append(kept, fe)
	}
	if !found {
		return fmt.Errorf("event %s not found on %s", uid, calendarID)
	}
	doc.Events = kept
	return a.save(doc)
}
