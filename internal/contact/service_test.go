package contact

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"mindweave/internal/crypto"
	"mindweave/internal/queue"
	"mindweave/internal/storage"
)

type fakeQueue struct {
	jobs []queue.NotifyJob
	err  error
}

func (f *fakeQueue) Enqueue(_ context.Context, job queue.NotifyJob) (string, error) {
	f.jobs = append(f.jobs, job)
	return "1-0", f.err
}

type fakeDeliverer struct {
	ids []int64
	err error
}

func (f *fakeDeliverer) Deliver(_ context.Context, id int64) error {
	f.ids = append(f.ids, id)
	return f.err
}

type memDedupe struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDedupe) MarkFirst(_ context.Context, fp string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	if d.seen[fp] {
		return false, nil
	}
	d.seen[fp] = true
	return true, nil
}

func (d *memDedupe) Forget(_ context.Context, fp string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, fp)
	return nil
}

// flakyStore fails inserts while down is set.
type flakyStore struct {
	*storage.Store
	down bool
}

func (f *flakyStore) InsertContactMessage(ctx context.Context, m storage.ContactMessage) (int64, error) {
	if f.down {
		return 0, errors.New("db down")
	}
	return f.Store.InsertContactMessage(ctx, m)
}

func newInbox(t *testing.T) (*Inbox, *storage.Store) {
	t.Helper()
	store, err := storage.Open(context.Background(), "sqlite", "file:"+filepath.Join(t.TempDir(), "contact.db"), true)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	sealer, err := crypto.NewSealer("k1", map[string][]byte{"k1": make([]byte, 32)})
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	return NewInbox(store, sealer), store
}

func sample() Message {
	return Message{
		FirstName:   " Ada ",
		LastName:    "Lovelace",
		Email:       "ada@example.com",
		Company:     "Analytical Engines",
		ProjectType: "RAG chatbot",
		Description: "We need a support bot over our manuals.",
		Timeline:    "6 weeks",
	}
}

func TestSubmitStoresSealedAndEnqueues(t *testing.T) {
	inbox, store := newInbox(t)
	q := &fakeQueue{}
	s := NewService(Config{Inbox: inbox, Queue: q})

	id, err := s.Submit(context.Background(), sample())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected stored id, got %d", id)
	}
	if len(q.jobs) != 1 || q.jobs[0].MessageID != id {
		t.Fatalf("expected one notify job for %d, got %+v", id, q.jobs)
	}

	row, err := store.GetContactMessage(context.Background(), id)
	if err != nil {
		t.Fatalf("get row: %v", err)
	}
	if strings.Contains(row.EncEmail, "ada@example.com") || strings.Contains(row.EncDescription, "manuals") {
		t.Fatalf("stored row leaks plaintext: %+v", row)
	}

	m, err := inbox.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.FirstName != "Ada" || m.Email != "ada@example.com" || m.Description != "We need a support bot over our manuals." {
		t.Fatalf("unexpected loaded message %+v", m)
	}
	if m.Notified {
		t.Fatalf("fresh message must not be notified")
	}
}

func TestSubmitDeliversInlineWithoutQueue(t *testing.T) {
	inbox, _ := newInbox(t)
	d := &fakeDeliverer{err: errors.New("smtp down")}
	s := NewService(Config{Inbox: inbox, Deliverer: d})

	id, err := s.Submit(context.Background(), sample())
	if err != nil {
		t.Fatalf("delivery failure must not fail the submission: %v", err)
	}
	if len(d.ids) != 1 || d.ids[0] != id {
		t.Fatalf("expected inline delivery of %d, got %v", id, d.ids)
	}
}

func TestSubmitDeduplicates(t *testing.T) {
	inbox, _ := newInbox(t)
	q := &fakeQueue{}
	s := NewService(Config{Inbox: inbox, Queue: q, Dedupe: &memDedupe{}})

	if _, err := s.Submit(context.Background(), sample()); err != nil {
		t.Fatalf("submit#1: %v", err)
	}
	id, err := s.Submit(context.Background(), sample())
	if err != nil {
		t.Fatalf("submit#2: %v", err)
	}
	if id != 0 {
		t.Fatalf("expected duplicate to be skipped, got id %d", id)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("expected a single job, got %d", len(q.jobs))
	}
}

func TestSubmitRetryAfterStoreFailure(t *testing.T) {
	_, store := newInbox(t)
	sealer, err := crypto.NewSealer("k1", map[string][]byte{"k1": make([]byte, 32)})
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	flaky := &flakyStore{Store: store, down: true}
	q := &fakeQueue{}
	s := NewService(Config{Inbox: NewInbox(flaky, sealer), Queue: q, Dedupe: &memDedupe{}})

	if _, err := s.Submit(context.Background(), sample()); err == nil {
		t.Fatalf("expected store failure")
	}

	flaky.down = false
	id, err := s.Submit(context.Background(), sample())
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if id <= 0 {
		t.Fatalf("resubmit after a failed save must be stored, got id %d", id)
	}
	if _, err := store.GetContactMessage(context.Background(), id); err != nil {
		t.Fatalf("stored row missing: %v", err)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("expected one notify job, got %d", len(q.jobs))
	}
}

func TestLoadResealsUnderCurrentKey(t *testing.T) {
	_, store := newInbox(t)
	oldKey, newKey := make([]byte, 32), make([]byte, 32)
	newKey[0] = 1

	oldSealer, err := crypto.NewSealer("old", map[string][]byte{"old": oldKey})
	if err != nil {
		t.Fatalf("old sealer: %v", err)
	}
	id, err := NewInbox(store, oldSealer).Save(context.Background(), sample())
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	rotated, err := crypto.NewSealer("new", map[string][]byte{"old": oldKey, "new": newKey})
	if err != nil {
		t.Fatalf("rotated sealer: %v", err)
	}
	m, err := NewInbox(store, rotated).Load(context.Background(), id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Email != "ada@example.com" {
		t.Fatalf("unexpected email %q", m.Email)
	}

	row, err := store.GetContactMessage(context.Background(), id)
	if err != nil {
		t.Fatalf("get row: %v", err)
	}
	if rotated.Stale(row.EncEmail) || rotated.Stale(row.EncDescription) {
		t.Fatalf("expected row to be resealed under the new key: %+v", row)
	}
}

func TestSubmitValidation(t *testing.T) {
	inbox, _ := newInbox(t)
	s := NewService(Config{Inbox: inbox})

	if _, err := s.Submit(context.Background(), Message{Email: "a@b.c"}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	long := sample()
	long.Description = strings.Repeat("x", 5001)
	if _, err := s.Submit(context.Background(), long); !errors.Is(err, ErrFieldTooLong) {
		t.Fatalf("expected ErrFieldTooLong, got %v", err)
	}
}

func TestCanConfirm(t *testing.T) {
	if !sample().CanConfirm() {
		t.Fatalf("expected valid address to be confirmable")
	}
	if (Message{Email: "not-an-address"}).CanConfirm() {
		t.Fatalf("expected address without @ to be skipped")
	}
}

func TestServeHTTP(t *testing.T) {
	inbox, _ := newInbox(t)
	s := NewService(Config{Inbox: inbox, Queue: &fakeQueue{}})

	cases := []struct {
		body   string
		status int
		ok     bool
	}{
		{`{"firstName":"Ada","email":"ada@example.com","description":"hi"}`, http.StatusOK, true},
		{`{"email":"ada@example.com"}`, http.StatusBadRequest, false},
		{`nope`, http.StatusBadRequest, false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/save-message", strings.NewReader(tc.body))
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.body, tc.status, rec.Code)
		}
		var resp submitResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: decode: %v", tc.body, err)
		}
		if resp.OK != tc.ok {
			t.Fatalf("%s: expected ok=%v, got %+v", tc.body, tc.ok, resp)
		}
	}
}
