package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"meetme/internal/models"
	"meetme/internal/planner"
	"meetme/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProvider struct{}

func (fakeProvider) ListCalendars(ctx context.Context) ([]models.Calendar, error) {
	return []models.Calendar{{ID: "work", Summary: "Work", Primary: true}}, nil
}

func (fakeProvider) ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]*models.Event, error) {
	if calendarID != "work" {
		return nil, nil
	}
	return []*models.Event{{
		ID:        "1",
		Title:     "meeting",
		StartTime: time.Date(2016, 12, 11, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2016, 12, 11, 11, 0, 0, 0, time.UTC),
	}}, nil
}

func anyToken(ctx context.Context, token *oauth2.Token) (planner.Provider, error) {
	return fakeProvider{}, nil
}

func needsToken(ctx context.Context, token *oauth2.Token) (planner.Provider, error) {
	if token == nil {
		return nil, ErrUnauthenticated
	}
	return fakeProvider{}, nil
}

func newTestServer(t *testing.T, providers ProviderFactory, oauth *oauth2.Config) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "meetme.db"))
	if err != nil {
		t.Fatal(err)
	}
	cached, err := store.NewCached(db, 16, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cached.Close() })

	s := NewServer(logger, planner.New(logger, cached), Options{
		BaseURL:     "http://meet.test",
		Location:    time.UTC,
		SessionTTL:  time.Hour,
		SessionSize: 16,
		OAuth:       oauth,
		Providers:   providers,
	})
	s.now = func() time.Time { return time.Date(2016, 12, 10, 12, 0, 0, 0, time.UTC) }
	return s
}

// browser replays the session cookie across requests.
type browser struct {
	t       *testing.T
	handler http.Handler
	cookies []*http.Cookie
}

func (b *browser) do(method, path, body string) *httptest.ResponseRecorder {
	b.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	if cookies := rec.Result().Cookies(); len(cookies) > 0 {
		b.cookies = cookies
	}
	return rec
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestScheduleFlow(t *testing.T) {
	s := newTestServer(t, anyToken, nil)
	maker := &browser{t: t, handler: s.Handler()}

	rec := maker.do(http.MethodPost, "/api/range", `{"daterange":"12/11/2016 - 12/12/2016","begin_time":"9am","end_time":"5pm"}`)
	expectStatus(t, rec, http.StatusOK)

	rec = maker.do(http.MethodGet, "/api/calendars", "")
	expectStatus(t, rec, http.StatusOK)
	cals := decode[struct{ Calendars []models.Calendar }](t, rec)
	if len(cals.Calendars) != 1 || cals.Calendars[0].ID != "work" {
		t.Fatalf("calendars = %+v", cals.Calendars)
	}

	rec = maker.do(http.MethodPost, "/api/proposal", `{"calendars":["work"]}`)
	expectStatus(t, rec, http.StatusOK)
	proposal := decode[planner.Proposal](t, rec)
	if len(proposal.Entries) != 4 || !proposal.Entries[1].Busy {
		t.Fatalf("entries = %+v", proposal.Entries)
	}

	// Dropping the meeting frees the whole first day.
	rec = maker.do(http.MethodPost, "/api/schedules", `{"drop":[1]}`)
	expectStatus(t, rec, http.StatusCreated)
	created := decode[struct {
		ID        uuid.UUID
		InviteURL string `json:"invite_url"`
	}](t, rec)
	if created.InviteURL != "http://meet.test/api/invite/"+created.ID.String() {
		t.Errorf("invite_url = %q", created.InviteURL)
	}
	schedulePath := "/api/schedules/" + created.ID.String()

	rec = maker.do(http.MethodGet, schedulePath, "")
	expectStatus(t, rec, http.StatusOK)
	sched := decode[models.Schedule](t, rec)
	want := []string{
		"2016-12-11 09:00Z 17:00Z | free time",
		"2016-12-12 09:00Z 17:00Z | free time",
	}
	if got := sched.Free.Lines(); strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("free = %q", got)
	}

	rec = maker.do(http.MethodGet, schedulePath+"/ics", "")
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type = %q", ct)
	}
	if n := strings.Count(rec.Body.String(), "BEGIN:VEVENT"); n != 2 {
		t.Errorf("exported %d events", n)
	}

	// An invitee without a proposal drops the second day from the stored entries.
	invitee := &browser{t: t, handler: s.Handler()}
	expectStatus(t, invitee.do(http.MethodGet, "/api/invite/"+created.ID.String(), ""), http.StatusOK)
	rec = invitee.do(http.MethodGet, "/api/session", "")
	expectStatus(t, rec, http.StatusOK)
	if info := decode[struct{ Daterange string }](t, rec); info.Daterange != "12/11/2016 - 12/12/2016" {
		t.Errorf("invitee daterange = %q", info.Daterange)
	}
	rec = invitee.do(http.MethodPost, schedulePath+"/join", `{"drop":[1]}`)
	expectStatus(t, rec, http.StatusOK)
	sched = decode[models.Schedule](t, rec)
	if sched.Participants != 2 || sched.Free.Len() != 1 {
		t.Fatalf("after first join: participants=%d free=%q", sched.Participants, sched.Free.Lines())
	}

	// A second invitee joins with their own calendar.
	second := &browser{t: t, handler: s.Handler()}
	expectStatus(t, second.do(http.MethodGet, "/api/invite/"+created.ID.String(), ""), http.StatusOK)
	expectStatus(t, second.do(http.MethodPost, "/api/proposal", `{"calendars":["work"]}`), http.StatusOK)
	rec = second.do(http.MethodPost, schedulePath+"/join", `{"drop":[]}`)
	expectStatus(t, rec, http.StatusOK)
	sched = decode[models.Schedule](t, rec)
	want = []string{
		"2016-12-11 09:00Z 10:00Z | free time",
		"2016-12-11 11:00Z 17:00Z | free time",
	}
	if got := sched.Free.Lines(); strings.Join(got, "\n") != strings.Join(want, "\n") || sched.Participants != 3 {
		t.Errorf("after second join: participants=%d free=%q", sched.Participants, got)
	}
}

func TestJoinIgnoresProposalForOtherWindow(t *testing.T) {
	s := newTestServer(t, anyToken, nil)
	maker := &browser{t: t, handler: s.Handler()}
	expectStatus(t, maker.do(http.MethodPost, "/api/range", `{"daterange":"12/11/2016 - 12/12/2016","begin_time":"9am","end_time":"5pm"}`), http.StatusOK)
	expectStatus(t, maker.do(http.MethodPost, "/api/proposal", `{"calendars":["work"]}`), http.StatusOK)
	rec := maker.do(http.MethodPost, "/api/schedules", `{"drop":[1]}`)
	expectStatus(t, rec, http.StatusCreated)
	created := decode[struct{ ID uuid.UUID }](t, rec)

	// This proposal covers other dates and was not made from the invitation.
	other := &browser{t: t, handler: s.Handler()}
	expectStatus(t, other.do(http.MethodPost, "/api/range", `{"daterange":"12/13/2016 - 12/14/2016","begin_time":"9am","end_time":"5pm"}`), http.StatusOK)
	expectStatus(t, other.do(http.MethodPost, "/api/proposal", `{"calendars":["work"]}`), http.StatusOK)
	rec = other.do(http.MethodPost, "/api/schedules/"+created.ID.String()+"/join", `{"drop":[]}`)
	expectStatus(t, rec, http.StatusOK)
	sched := decode[models.Schedule](t, rec)
	want := []string{
		"2016-12-11 09:00Z 17:00Z | free time",
		"2016-12-12 09:00Z 17:00Z | free time",
	}
	if got := sched.Free.Lines(); strings.Join(got, "\n") != strings.Join(want, "\n") || sched.Participants != 2 {
		t.Errorf("participants=%d free=%q", sched.Participants, got)
	}
}

func TestErrors(t *testing.T) {
	s := newTestServer(t, anyToken, nil)
	b := &browser{t: t, handler: s.Handler()}

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bad schedule id", http.MethodGet, "/api/schedules/not-a-uuid", "", http.StatusBadRequest},
		{"unknown schedule", http.MethodGet, "/api/schedules/" + uuid.NewString(), "", http.StatusNotFound},
		{"unknown invite", http.MethodGet, "/api/invite/" + uuid.NewString(), "", http.StatusNotFound},
		{"unknown join", http.MethodPost, "/api/schedules/" + uuid.NewString() + "/join", `{"drop":[]}`, http.StatusNotFound},
		{"bad range", http.MethodPost, "/api/range", `{"daterange":"tomorrow","begin_time":"9am","end_time":"5pm"}`, http.StatusBadRequest},
		{"inverted clocks", http.MethodPost, "/api/range", `{"daterange":"12/11/2016 - 12/12/2016","begin_time":"5pm","end_time":"9am"}`, http.StatusBadRequest},
		{"range too long", http.MethodPost, "/api/range", `{"daterange":"01/01/2000 - 12/31/2999","begin_time":"9am","end_time":"5pm"}`, http.StatusBadRequest},
		{"missing fields", http.MethodPost, "/api/range", `{}`, http.StatusBadRequest},
		{"no calendars", http.MethodPost, "/api/proposal", `{"calendars":[]}`, http.StatusBadRequest},
		{"finalize without proposal", http.MethodPost, "/api/schedules", `{"drop":[]}`, http.StatusBadRequest},
		{"google not configured", http.MethodGet, "/auth/google", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := b.do(tc.method, tc.path, tc.body)
			expectStatus(t, rec, tc.want)
			if body := decode[map[string]string](t, rec); body["error"] == "" {
				t.Errorf("missing error message: %s", rec.Body.String())
			}
		})
	}
}

func TestFinalizeBadIndex(t *testing.T) {
	s := newTestServer(t, anyToken, nil)
	b := &browser{t: t, handler: s.Handler()}
	expectStatus(t, b.do(http.MethodPost, "/api/range", `{"daterange":"12/11/2016 - 12/12/2016","begin_time":"9am","end_time":"5pm"}`), http.StatusOK)
	expectStatus(t, b.do(http.MethodPost, "/api/proposal", `{"calendars":["work"]}`), http.StatusOK)
	expectStatus(t, b.do(http.MethodPost, "/api/schedules", `{"drop":[99]}`), http.StatusBadRequest)
}

func TestDefaultWindow(t *testing.T) {
	s := newTestServer(t, anyToken, nil)
	b := &browser{t: t, handler: s.Handler()}
	rec := b.do(http.MethodGet, "/api/session", "")
	expectStatus(t, rec, http.StatusOK)
	info := decode[struct {
		Daterange     string
		Authenticated bool
	}](t, rec)
	if info.Daterange != "12/11/2016 - 12/17/2016" || info.Authenticated {
		t.Errorf("session = %+v", info)
	}
	if len(b.cookies) == 0 || b.cookies[0].Name != sessionCookie {
		t.Errorf("session cookie not set: %v", b.cookies)
	}
}

func TestUnauthenticated(t *testing.T) {
	s := newTestServer(t, needsToken, nil)
	b := &browser{t: t, handler: s.Handler()}
	expectStatus(t, b.do(http.MethodGet, "/api/calendars", ""), http.StatusUnauthorized)
	expectStatus(t, b.do(http.MethodPost, "/api/proposal", `{"calendars":["work"]}`), http.StatusUnauthorized)
}

func TestGoogleRedirect(t *testing.T) {
	oauth := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://meet.test/oauth2callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.com/auth",
			TokenURL: "https://accounts.example.com/token",
		},
	}
	s := newTestServer(t, needsToken, oauth)
	b := &browser{t: t, handler: s.Handler()}

	rec := b.do(http.MethodGet, "/auth/google", "")
	expectStatus(t, rec, http.StatusFound)
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if loc.Host != "accounts.example.com" || loc.Query().Get("state") == "" {
		t.Errorf("redirect = %s", loc)
	}

	expectStatus(t, b.do(http.MethodGet, "/oauth2callback?state=forged&code=abc", ""), http.StatusBadRequest)
	expectStatus(t, b.do(http.MethodGet, "/oauth2callback?error=access_denied", ""), http.StatusUnauthorized)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, anyToken, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	expectStatus(t, rec, http.StatusOK)
}
