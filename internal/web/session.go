package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"

	"meetme/internal/agenda"
	"meetme/internal/planner"
)

const sessionCookie = "meetme_session"

// session is the server-side state of one browser.
type session struct {
	mu sync.Mutex

	token      *oauth2.Token
	oauthState string
	window     agenda.Window
	proposal   *planner.Proposal
	invite     uuid.UUID
}

type sessionStore struct {
	cache  *expirable.LRU[uuid.UUID, *session]
	ttl    time.Duration
	newWin func() agenda.Window
}

func newSessionStore(size int, ttl time.Duration, newWin func() agenda.Window) *sessionStore {
	return &sessionStore{
		cache:  expirable.NewLRU[uuid.UUID, *session](size, nil, ttl),
		ttl:    ttl,
		newWin: newWin,
	}
}

// load returns the caller's session, starting a new one when the cookie is
// missing, malformed or expired. The cookie is refreshed on every request.
func (s *sessionStore) load(c *gin.Context) *session {
	var (
		id   uuid.UUID
		sess *session
	)
	if raw, err := c.Cookie(sessionCookie); err == nil {
		if parsed, err := uuid.Parse(raw); err == nil {
			if found, ok := s.cache.Get(parsed); ok {
				id, sess = parsed, found
			}
		}
	}
	if sess == nil {
		id = uuid.New()
		sess = &session{window: s.newWin()}
	}
	// Re-adding resets the entry's expiry.
	s.cache.Add(id, sess)

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, id.String(), int(s.ttl.Seconds()), "/", "", false, true)
	return sess
}
