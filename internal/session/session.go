package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	constants "nombroludo/internal/constants"
	models "nombroludo/internal/models"
	util "nombroludo/internal/util"
)

// Registry maps player session tokens to match seats. The token is the
// explicit reconnect handle: a client that lost its state presents the
// token and re-derives everything else from the match snapshot.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*models.PlayerSession
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*models.PlayerSession)}
}

// Issue creates a session for a seat and returns its token.
func (r *Registry) Issue(matchID, lobbyID string, player int, playerName string) *models.PlayerSession {
	s := &models.PlayerSession{
		Token:      uuid.NewString(),
		MatchID:    matchID,
		LobbyID:    lobbyID,
		Player:     player,
		PlayerName: playerName,
		CreatedAt:  time.Now(),
	}
	r.mu.Lock()
	r.sessions[s.Token] = s
	r.mu.Unlock()
	util.LogInfo("Issued session for player %d in match %s", player, matchID)
	return s
}

// Lookup resolves a token to its seat.
func (r *Registry) Lookup(token string) (*models.PlayerSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[token]
	return s, ok
}

// Drop removes one session.
func (r *Registry) Drop(token string) {
	r.mu.Lock()
	delete(r.sessions, token)
	r.mu.Unlock()
}

// DropByMatch removes every session bound to a match, used once the
// match is cancelled or swept.
func (r *Registry) DropByMatch(matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, s := range r.sessions {
		if s.MatchID == matchID {
			delete(r.sessions, token)
		}
	}
}

// Sweep removes sessions older than maxAge and returns how many went.
func (r *Registry) Sweep(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for token, s := range r.sessions {
		if s.CreatedAt.Before(cutoff) {
			delete(r.sessions, token)
			removed++
		}
	}
	if removed > 0 {
		util.LogInfo("Cleaned up %d expired player session%s", removed, util.Plural(removed))
	}
	return removed
}

// Count reports live sessions, for the health endpoint.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SetCookie attaches the session token to the response the way the rest
// of the app sets cookies: strict same-site, secure in production.
func SetCookie(app *models.App, c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(constants.SessionCookieName, token, int(app.CookieMaxAge.Seconds()), "/", "", app.IsProduction, true)
}

// ClearCookie expires the session cookie.
func ClearCookie(app *models.App, c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(constants.SessionCookieName, "", -1, "/", "", app.IsProduction, true)
}

// TokenFromRequest reads the token from the X-Player-Token header, or
// the cookie for browser callers.
func TokenFromRequest(c *gin.Context) string {
	if token := c.GetHeader(constants.PlayerTokenHeader); token != "" {
		return token
	}
	token, err := c.Cookie(constants.SessionCookieName)
	if err != nil {
		return ""
	}
	return token
}
