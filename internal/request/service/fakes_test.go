package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/audit"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/entity"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/events"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/notify"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/relay"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/store"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/summary"
)

type memStore struct {
	rows     []entity.Request
	loads    int
	writes   int
	loadErr  error
	writeErr error
}

func (m *memStore) LoadAll(ctx context.Context) ([]entity.Request, error) {
	m.loads++
	if m.loadErr != nil {
		return nil, &store.ReadError{Err: m.loadErr}
	}
	out := make([]entity.Request, len(m.rows))
	for i, r := range m.rows {
		out[i] = r.Clone()
	}
	return out, nil
}

func (m *memStore) WriteAll(ctx context.Context, rows []entity.Request) error {
	if m.writeErr != nil {
		return &store.WriteError{Err: m.writeErr}
	}
	m.writes++
	m.rows = make([]entity.Request, len(rows))
	for i, r := range rows {
		m.rows[i] = r.Clone()
	}
	return nil
}

type storedFile struct {
	dest     relay.Destination
	filename string
	content  string
}

type fakeRelay struct {
	mu     sync.Mutex
	stored []storedFile
	fail   map[string]bool
}

func (f *fakeRelay) Store(ctx context.Context, up relay.Upload, dest relay.Destination) (string, error) {
	data, err := io.ReadAll(up.Reader)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for name := range f.fail {
		if strings.Contains(up.Filename, name) {
			return "", errors.New("storage unavailable")
		}
	}
	f.stored = append(f.stored, storedFile{dest: dest, filename: up.Filename, content: string(data)})
	return fmt.Sprintf("https://files.test/%s/%d/%s", dest, len(f.stored), up.Filename), nil
}

func (f *fakeRelay) count(dest relay.Destination) int {
	n := 0
	for _, s := range f.stored {
		if s.dest == dest {
			n++
		}
	}
	return n
}

type fakeDispatcher struct {
	intents []notify.Intent
	fail    map[string]bool
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, intents []notify.Intent) []notify.Delivery {
	out := make([]notify.Delivery, 0, len(intents))
	for _, in := range intents {
		f.intents = append(f.intents, in)
		sent := !f.fail[in.Recipient]
		d := notify.Delivery{Recipient: in.Recipient, Template: in.Template, Sent: sent}
		if !sent {
			d.Error = "send failed"
		}
		out = append(out, d)
	}
	return out
}

type fakeCache struct{ invalidations int }

func (f *fakeCache) Invalidate(ctx context.Context) error {
	f.invalidations++
	return nil
}

type fakeAudit struct{ changes []audit.StatusChange }

func (f *fakeAudit) Record(ctx context.Context, c *audit.StatusChange) error {
	f.changes = append(f.changes, *c)
	return nil
}

func (f *fakeAudit) History(ctx context.Context, ticket string) ([]audit.StatusChange, error) {
	var out []audit.StatusChange
	for _, c := range f.changes {
		if c.TicketID == ticket {
			out = append(out, c)
		}
	}
	return out, nil
}

type publishedEvent struct {
	kind   string
	change events.RequestChange
}

type fakePublisher struct{ events []publishedEvent }

func (f *fakePublisher) Publish(eventType string, payload interface{}) {
	f.events = append(f.events, publishedEvent{kind: eventType, change: payload.(events.RequestChange)})
}

type fixture struct {
	svc        *RequestService
	store      *memStore
	relay      *fakeRelay
	dispatcher *fakeDispatcher
	cache      *fakeCache
	audit      *fakeAudit
	events     *fakePublisher
	now        time.Time
}

func newFixture(t *testing.T, rows ...entity.Request) *fixture {
	t.Helper()
	f := &fixture{
		store:      &memStore{rows: rows},
		relay:      &fakeRelay{},
		dispatcher: &fakeDispatcher{},
		cache:      &fakeCache{},
		audit:      &fakeAudit{},
		events:     &fakePublisher{},
		now:        time.Date(2025, 6, 10, 14, 0, 0, 0, time.Local),
	}
	f.svc = NewRequestService(Deps{
		Store:      f.store,
		Cache:      f.cache,
		Relay:      f.relay,
		Render:     summary.Render,
		Dispatcher: f.dispatcher,
		Audit:      f.audit,
		Events:     f.events,
		Coordinators: []Recipient{
			{Email: "coord1@example.org", Name: "Casey"},
			{Email: "coord2@example.org", Name: "Jordan"},
		},
	}, nil)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func validForm() SubmitForm {
	return SubmitForm{
		ProjectGrant:      "Cross-Center",
		Name:              "Robin Park",
		Email:             "robin@example.org",
		RequestType:       "New Product",
		SupportTypes:      []string{"Writing"},
		PrimaryPurposes:   []string{"Inform"},
		TargetAudiences:   []string{"HRSA"},
		AudienceAction:    "Register for the webinar",
		RequestedDueDate:  "2025-07-01",
		DriverDeadline:    "Conference date",
		GrantDeliverable:  "Yes",
		PriorityLevel:     "High",
		KeyPoints:         "Key dates and speakers",
		SubjectMatter:     "Program leads",
		ShareExternally:   "Yes",
		SensitiveContent:  []string{"None of the above"},
		PermissionSecured: "Yes",
		EstimatedLength:   "1 page",
		DesignSupport:     "Light",
		LiveLocations:     []string{"Website"},
	}
}

func textFile(name, content string) File {
	return File{
		Name:        name,
		ContentType: "text/plain",
		Size:        int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}
