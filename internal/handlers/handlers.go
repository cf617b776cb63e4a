package handlers

import (
	"errors"
	"io"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	constants "nombroludo/internal/constants"
	game "nombroludo/internal/game"
	lobby "nombroludo/internal/lobby"
	models "nombroludo/internal/models"
	session "nombroludo/internal/session"
	store "nombroludo/internal/store"
	util "nombroludo/internal/util"
)

// API bundles what every handler needs: app config, the lobby
// directory, and the player session registry.
type API struct {
	App      *models.App
	Dir      *lobby.Directory
	Sessions *session.Registry
}

type createGameRequest struct {
	Name    string `json:"name"`
	Secret  string `json:"secret"`
	Mode    string `json:"mode"`
	Private bool   `json:"private"`
}

type joinRequest struct {
	Name       string `json:"name"`
	Secret     string `json:"secret"`
	AccessCode string `json:"accessCode"`
}

type guessRequest struct {
	Guess string `json:"guess"`
}

type playerView struct {
	Name       string    `json:"name"`
	Secret     string    `json:"secret,omitempty"`
	LastActive time.Time `json:"lastActive"`
}

type matchView struct {
	ID          string               `json:"id"`
	LobbyID     string               `json:"lobbyId,omitempty"`
	Mode        string               `json:"mode"`
	Status      string               `json:"status"`
	Player1     playerView           `json:"player1"`
	Player2     *playerView          `json:"player2,omitempty"`
	CurrentTurn int                  `json:"currentTurn"`
	Winner      int                  `json:"winner,omitempty"`
	EndReason   string               `json:"endReason,omitempty"`
	You         int                  `json:"you,omitempty"`
	YourSecret  string               `json:"yourSecret,omitempty"`
	GuessLog    []models.GuessRecord `json:"guessLog"`
	Player1Log  []models.GuessRecord `json:"player1Guesses"`
	Player2Log  []models.GuessRecord `json:"player2Guesses"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

type lobbyView struct {
	ID        string    `json:"id"`
	HostName  string    `json:"hostName"`
	Mode      string    `json:"mode"`
	Private   bool      `json:"private"`
	CreatedAt time.Time `json:"createdAt"`
}

type activeMatchView struct {
	ID        string    `json:"id"`
	Player1   string    `json:"player1"`
	Player2   string    `json:"player2"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"createdAt"`
}

// BuildMatchView shapes a match snapshot for one viewer. Players see
// their own secret only; spectators of a running match and anyone
// looking at a terminal match see both. A match still waiting for an
// opponent reveals nothing to outsiders.
func BuildMatchView(m *models.Match, viewer int) matchView {
	reveal := m.Terminal() || (viewer == constants.PlayerNone && m.Status != constants.StatusWaiting)

	descending := func(log []models.GuessRecord) []models.GuessRecord {
		out := make([]models.GuessRecord, len(log))
		copy(out, log)
		sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
		return out
	}

	view := matchView{
		ID:          m.ID,
		LobbyID:     m.LobbyID,
		Mode:        m.Mode,
		Status:      m.Status,
		CurrentTurn: m.Turn,
		Winner:      m.Winner,
		EndReason:   m.EndReason,
		You:         viewer,
		GuessLog:    append([]models.GuessRecord{}, m.GuessLog...),
		Player1Log:  descending(lo.Filter(m.GuessLog, func(r models.GuessRecord, _ int) bool { return r.Player == constants.PlayerOne })),
		Player2Log:  descending(lo.Filter(m.GuessLog, func(r models.GuessRecord, _ int) bool { return r.Player == constants.PlayerTwo })),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}

	view.Player1 = playerView{Name: m.Player1.Name, LastActive: m.Player1.LastActive}
	if reveal || viewer == constants.PlayerOne {
		view.Player1.Secret = m.Player1.Secret
	}
	if m.Player2.Filled() {
		p2 := playerView{Name: m.Player2.Name, LastActive: m.Player2.LastActive}
		if reveal || viewer == constants.PlayerTwo {
			p2.Secret = m.Player2.Secret
		}
		view.Player2 = &p2
	}
	if slot := m.Slot(viewer); slot != nil {
		view.YourSecret = slot.Secret
	}
	return view
}

func (api *API) CreateGameHandler(c *gin.Context) {
	var req createGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": constants.ErrorCodeInvalidName})
		return
	}
	if req.Mode == "" {
		req.Mode = constants.ModeClassic
	}
	result, err := api.Dir.Create(req.Name, req.Secret, req.Mode, req.Private, time.Now())
	if err != nil {
		api.respondError(c, err)
		return
	}
	s := api.Sessions.Issue(result.Match.ID, result.Lobby.ID, constants.PlayerOne, result.Match.Player1.Name)
	session.SetCookie(api.App, c, s.Token)
	c.JSON(http.StatusCreated, gin.H{
		"lobbyId":     result.Lobby.ID,
		"matchId":     result.Match.ID,
		"playerToken": s.Token,
		"accessCode":  result.AccessCode,
		"match":       BuildMatchView(result.Match, constants.PlayerOne),
	})
}

func (api *API) OpenLobbiesHandler(c *gin.Context) {
	lobbies, err := api.Dir.ListOpen()
	if err != nil {
		api.respondError(c, err)
		return
	}
	views := lo.Map(lobbies, func(l *models.Lobby, _ int) lobbyView {
		return lobbyView{ID: l.ID, HostName: l.HostName, Mode: l.Mode, Private: l.Private, CreatedAt: l.CreatedAt}
	})
	c.JSON(http.StatusOK, gin.H{"lobbies": views})
}

func (api *API) ActiveGamesHandler(c *gin.Context) {
	matches, err := api.Dir.ListActive()
	if err != nil {
		api.respondError(c, err)
		return
	}
	views := lo.Map(matches, func(m *models.Match, _ int) activeMatchView {
		return activeMatchView{ID: m.ID, Player1: m.Player1.Name, Player2: m.Player2.Name, Mode: m.Mode, CreatedAt: m.CreatedAt}
	})
	c.JSON(http.StatusOK, gin.H{"matches": views})
}

func (api *API) JoinLobbyHandler(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": constants.ErrorCodeInvalidName})
		return
	}
	result, err := api.Dir.Join(c.Param("id"), req.Name, req.Secret, req.AccessCode, time.Now())
	if err != nil {
		api.respondError(c, err)
		return
	}
	api.respondJoined(c, result)
}

func (api *API) JoinByCodeHandler(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": constants.ErrorCodeInvalidName})
		return
	}
	result, err := api.Dir.JoinByCode(req.AccessCode, req.Name, req.Secret, time.Now())
	if err != nil {
		api.respondError(c, err)
		return
	}
	api.respondJoined(c, result)
}

func (api *API) respondJoined(c *gin.Context, result *lobby.JoinResult) {
	s := api.Sessions.Issue(result.Match.ID, result.Lobby.ID, constants.PlayerTwo, result.Match.Player2.Name)
	session.SetCookie(api.App, c, s.Token)
	c.JSON(http.StatusOK, gin.H{
		"matchId":     result.Match.ID,
		"lobbyId":     result.Lobby.ID,
		"playerToken": s.Token,
		"match":       BuildMatchView(result.Match, constants.PlayerTwo),
	})
}

func (api *API) GameViewHandler(c *gin.Context) {
	matchID := c.Param("id")
	match, err := api.Dir.Match(matchID)
	if err != nil {
		api.respondError(c, err)
		return
	}
	viewer := api.viewerFor(c, matchID)
	// Spectators are only admitted once the match is underway.
	if viewer == constants.PlayerNone && match.Status == constants.StatusWaiting {
		c.JSON(http.StatusNotFound, gin.H{"error": constants.ErrorCodeMatchNotFound})
		return
	}
	c.JSON(http.StatusOK, gin.H{"match": BuildMatchView(match, viewer)})
}

func (api *API) WatchHandler(c *gin.Context) {
	matchID := c.Param("id")
	viewer := api.viewerFor(c, matchID)

	// Subscribe before taking the first snapshot, so a change landing
	// in between is streamed instead of lost.
	events, cancel := api.Dir.WatchMatch(matchID)
	defer cancel()

	match, err := api.Dir.Match(matchID)
	if err != nil {
		api.respondError(c, err)
		return
	}
	if viewer == constants.PlayerNone && match.Status == constants.StatusWaiting {
		c.JSON(http.StatusNotFound, gin.H{"error": constants.ErrorCodeMatchNotFound})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent("match", BuildMatchView(match, viewer))
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if ev.Type == store.EventDelete {
				c.SSEvent("deleted", gin.H{"matchId": matchID})
				return false
			}
			if m, ok := ev.Doc.(*models.Match); ok {
				c.SSEvent("match", BuildMatchView(m, viewer))
			}
			return true
		}
	})
}

func (api *API) GuessHandler(c *gin.Context) {
	s, ok := api.playerSession(c)
	if !ok {
		return
	}
	if s.MatchID != c.Param("id") {
		c.JSON(http.StatusForbidden, gin.H{"error": constants.ErrorCodeNotAPlayer})
		return
	}
	var req guessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": constants.ErrorCodeInvalidGuessFormat})
		return
	}
	reqID := util.RequestID(c.Request.Context())
	util.LogInfo("[request_id=%v] Player %d guessed %q in match %s", reqID, s.Player, req.Guess, s.MatchID)
	record, match, err := api.Dir.SubmitGuess(s.MatchID, s.Player, req.Guess, time.Now())
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"guess":  record,
		"result": record.Display,
		"match":  BuildMatchView(match, s.Player),
	})
}

func (api *API) LeaveHandler(c *gin.Context) {
	s, ok := api.playerSession(c)
	if !ok {
		return
	}
	if s.MatchID != c.Param("id") {
		c.JSON(http.StatusForbidden, gin.H{"error": constants.ErrorCodeNotAPlayer})
		return
	}
	match, err := api.Dir.Leave(s.MatchID, s.Player, time.Now())
	if errors.Is(err, game.ErrMatchNotStarted) {
		// Leaving while still unpaired cancels the whole lobby/match pair.
		if cancelErr := api.Dir.Cancel(s.MatchID, time.Now()); cancelErr != nil {
			api.respondError(c, cancelErr)
			return
		}
		api.Sessions.DropByMatch(s.MatchID)
		session.ClearCookie(api.App, c)
		c.JSON(http.StatusOK, gin.H{"cancelled": true})
		return
	}
	if err != nil {
		api.respondError(c, err)
		return
	}
	api.Sessions.Drop(s.Token)
	session.ClearCookie(api.App, c)
	c.JSON(http.StatusOK, gin.H{"match": BuildMatchView(match, s.Player)})
}

func (api *API) HeartbeatHandler(c *gin.Context) {
	s, ok := api.playerSession(c)
	if !ok {
		return
	}
	if s.MatchID != c.Param("id") {
		c.JSON(http.StatusForbidden, gin.H{"error": constants.ErrorCodeNotAPlayer})
		return
	}
	match, err := api.Dir.Heartbeat(s.MatchID, s.Player, time.Now())
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": match.Status})
}

func (api *API) ClaimTimeoutHandler(c *gin.Context) {
	s, ok := api.playerSession(c)
	if !ok {
		return
	}
	if s.MatchID != c.Param("id") {
		c.JSON(http.StatusForbidden, gin.H{"error": constants.ErrorCodeNotAPlayer})
		return
	}
	match, err := api.Dir.ClaimTimeout(s.MatchID, s.Player, api.App.PlayerInactivityTTL, time.Now())
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"match": BuildMatchView(match, s.Player)})
}

func (api *API) CancelLobbyHandler(c *gin.Context) {
	s, ok := api.playerSession(c)
	if !ok {
		return
	}
	if s.LobbyID != c.Param("id") {
		c.JSON(http.StatusForbidden, gin.H{"error": constants.ErrorCodeNotAPlayer})
		return
	}
	if err := api.Dir.Cancel(s.MatchID, time.Now()); err != nil {
		api.respondError(c, err)
		return
	}
	api.Sessions.DropByMatch(s.MatchID)
	session.ClearCookie(api.App, c)
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

// SessionHandler restores a reconnecting client: the token is resolved
// back to its match, or the stale session is discarded.
func (api *API) SessionHandler(c *gin.Context) {
	s, ok := api.playerSession(c)
	if !ok {
		return
	}
	match, err := api.Dir.Match(s.MatchID)
	if errors.Is(err, lobby.ErrMatchNotFound) {
		api.Sessions.Drop(s.Token)
		session.ClearCookie(api.App, c)
		c.JSON(http.StatusNotFound, gin.H{"error": constants.ErrorCodeMatchNotFound})
		return
	}
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"matchId": match.ID,
		"lobbyId": s.LobbyID,
		"player":  s.Player,
		"match":   BuildMatchView(match, s.Player),
	})
}

func (api *API) HealthzHandler(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(api.App.StartTime)

	openLobbies, _ := api.Dir.ListOpen()
	activeMatches, _ := api.Dir.ListActive()

	api.App.LimiterMutex.RLock()
	limiterCount := len(api.App.LimiterMap)
	api.App.LimiterMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"env":             map[bool]string{true: "production", false: "development"}[api.App.IsProduction],
		"open_lobbies":    len(openLobbies),
		"active_matches":  len(activeMatches),
		"player_sessions": api.Sessions.Count(),
		"active_limiters": limiterCount,
		"memory_alloc_mb": m.Alloc / 1024 / 1024,
		"memory_sys_mb":   m.Sys / 1024 / 1024,
		"memory_gc_count": m.NumGC,
		"uptime":          util.FormatUptime(uptime),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// playerSession resolves the caller's token or writes the 401 itself.
func (api *API) playerSession(c *gin.Context) (*models.PlayerSession, bool) {
	token := session.TokenFromRequest(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": constants.ErrorCodeNotAPlayer})
		return nil, false
	}
	s, ok := api.Sessions.Lookup(token)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": constants.ErrorCodeNotAPlayer})
		return nil, false
	}
	return s, true
}

// viewerFor returns the player number the caller is seated as in the
// match, or PlayerNone for spectators.
func (api *API) viewerFor(c *gin.Context, matchID string) int {
	token := session.TokenFromRequest(c)
	if token == "" {
		return constants.PlayerNone
	}
	s, ok := api.Sessions.Lookup(token)
	if !ok || s.MatchID != matchID {
		return constants.PlayerNone
	}
	return s.Player
}

func (api *API) respondError(c *gin.Context, err error) {
	var syncErr *store.SyncError
	if errors.As(err, &syncErr) {
		util.LogWarn("Sync failure: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": constants.ErrorCodeSyncFailure})
		return
	}
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, lobby.ErrMatchNotFound), errors.Is(err, lobby.ErrLobbyNotFound):
		status = http.StatusNotFound
	case errors.Is(err, lobby.ErrInvalidAccessCode), errors.Is(err, game.ErrNotAPlayer):
		status = http.StatusForbidden
	case errors.Is(err, game.ErrNotYourTurn),
		errors.Is(err, game.ErrMatchAlreadyTerminal),
		errors.Is(err, game.ErrMatchNotStarted),
		errors.Is(err, game.ErrLobbyUnavailable),
		errors.Is(err, game.ErrOpponentStillActive):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
