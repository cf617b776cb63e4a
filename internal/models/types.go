package models

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// GuessResult is the bulls/cows score for one guess. Bulls are digits in
// the right position, cows are digits present elsewhere in the secret.
type GuessResult struct {
	Bulls int `json:"bulls"`
	Cows  int `json:"cows"`
}

// GuessRecord is one entry of a match's append-only guess log.
type GuessRecord struct {
	Player    int         `json:"player"`
	Guess     string      `json:"guess"`
	Result    GuessResult `json:"result"`
	Display   string      `json:"display"`
	Timestamp time.Time   `json:"timestamp"`
}

// PlayerSlot holds one player's identity inside a match. Secret stays
// server-side; views decide when it is revealed.
type PlayerSlot struct {
	Name       string    `json:"name"`
	Secret     string    `json:"secret"`
	LastActive time.Time `json:"lastActive"`
}

func (p PlayerSlot) Filled() bool { return p.Name != "" }

// Match is the aggregate the state machine operates on. Status moves
// waiting -> playing -> completed; once Winner is set the match is
// terminal and no further guesses are accepted.
type Match struct {
	ID        string        `json:"id"`
	LobbyID   string        `json:"lobbyId"`
	Player1   PlayerSlot    `json:"player1"`
	Player2   PlayerSlot    `json:"player2"`
	Mode      string        `json:"mode"`
	Status    string        `json:"status"`
	FirstTurn int           `json:"firstTurn"`
	Turn      int           `json:"currentTurn"`
	Winner    int           `json:"winner"`
	EndReason string        `json:"endReason"`
	GuessLog  []GuessRecord `json:"guessLog"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Clone deep-copies the match, including its guess log, so stored state
// never aliases a snapshot handed to a caller.
func (m *Match) Clone() any {
	out := *m
	out.GuessLog = make([]GuessRecord, len(m.GuessLog))
	copy(out.GuessLog, m.GuessLog)
	return &out
}

// Opponent returns the other player's number, or PlayerNone for input
// that is not a player number.
func (m *Match) Opponent(player int) int {
	switch player {
	case 1:
		return 2
	case 2:
		return 1
	default:
		return 0
	}
}

// Terminal reports whether the match has ended and accepts no further
// transitions.
func (m *Match) Terminal() bool { return m.Winner != 0 }

// Slot returns the slot for the given player number, nil otherwise.
func (m *Match) Slot(player int) *PlayerSlot {
	switch player {
	case 1:
		return &m.Player1
	case 2:
		return &m.Player2
	default:
		return nil
	}
}

// Lobby is the matchmaking record pairing two players before a match
// starts. Private lobbies carry a six-character access code.
type Lobby struct {
	ID         string    `json:"id"`
	MatchID    string    `json:"matchId"`
	HostName   string    `json:"hostName"`
	JoinerName string    `json:"joinerName"`
	Mode       string    `json:"mode"`
	Status     string    `json:"status"`
	Private    bool      `json:"private"`
	AccessCode string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"lastActive"`
}

// Clone copies the lobby. Lobbies hold no reference fields, so a value
// copy is a deep copy.
func (l *Lobby) Clone() any {
	out := *l
	return &out
}

// PlayerSession maps a session token to a seat in a match.
type PlayerSession struct {
	Token      string    `json:"token"`
	MatchID    string    `json:"matchId"`
	LobbyID    string    `json:"lobbyId"`
	Player     int       `json:"player"`
	PlayerName string    `json:"playerName"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RateLimiterEntry tracks a per-client limiter and its last use so stale
// entries can be swept.
type RateLimiterEntry struct {
	Limiter    *rate.Limiter
	LastAccess time.Time
}

// App carries process-wide configuration and shared mutable state.
type App struct {
	IsProduction bool
	StartTime    time.Time

	CookieMaxAge        time.Duration
	LobbyIdleTTL        time.Duration
	PlayerInactivityTTL time.Duration
	MatchRetention      time.Duration
	SweepInterval       time.Duration
	RateLimitRPS        int
	RateLimitBurst      int
	RateLimiterTTL      time.Duration
	AllowedOrigins      []string

	LimiterMap   map[string]*RateLimiterEntry
	LimiterMutex sync.RWMutex
}
