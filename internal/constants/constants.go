package constants

import "time"

const (
	SecretLength     = 4
	AccessCodeLength = 6
)

const (
	ModeClassic = "classic"
	ModeRapid   = "rapid"
)

const (
	StatusWaiting   = "waiting"
	StatusPlaying   = "playing"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	EndReasonNone             = ""
	EndReasonWin              = "win"
	EndReasonOpponentLeft     = "opponent_left"
	EndReasonOpponentInactive = "opponent_inactive"
)

const (
	PlayerNone = 0
	PlayerOne  = 1
	PlayerTwo  = 2
)

const (
	CollectionMatches = "matches"
	CollectionLobbies = "lobbies"
)

const (
	SessionCookieName = "player_token"
	PlayerTokenHeader = "X-Player-Token"
)

const (
	RouteCreateGame    = "/api/games"
	RouteOpenLobbies   = "/api/lobbies"
	RouteActiveGames   = "/api/active-games"
	RouteJoinLobby     = "/api/lobbies/:id/join"
	RouteJoinByCode    = "/api/join-by-code"
	RouteGameView      = "/api/games/:id"
	RouteGameWatch     = "/api/games/:id/watch"
	RouteGuess         = "/api/games/:id/guess"
	RouteLeave         = "/api/games/:id/leave"
	RouteHeartbeat     = "/api/games/:id/heartbeat"
	RouteClaimTimeout  = "/api/games/:id/claim-timeout"
	RouteCancelLobby   = "/api/lobbies/:id"
	RouteSession       = "/api/session"
	RouteHealthz       = "/healthz"
)

const (
	ErrorCodeInvalidGuessFormat   = "invalid_guess_format"
	ErrorCodeInvalidName          = "invalid_name"
	ErrorCodeInvalidMode          = "invalid_mode"
	ErrorCodeNotYourTurn          = "not_your_turn"
	ErrorCodeMatchAlreadyTerminal = "match_already_terminal"
	ErrorCodeMatchNotStarted      = "match_not_started"
	ErrorCodeMatchNotFound        = "match_not_found"
	ErrorCodeLobbyNotFound        = "lobby_not_found"
	ErrorCodeLobbyUnavailable     = "lobby_unavailable"
	ErrorCodeInvalidAccessCode    = "invalid_access_code"
	ErrorCodeNotAPlayer           = "not_a_player"
	ErrorCodeOpponentStillActive  = "opponent_still_active"
	ErrorCodeSyncFailure          = "sync_failure"
)

const (
	DefaultLobbyIdleTTL        = 3 * time.Minute
	DefaultPlayerInactivityTTL = 2 * time.Minute
	DefaultSweepInterval       = 30 * time.Second
	DefaultMatchRetention      = 1 * time.Hour
)

type ContextKey string

const RequestIDKey ContextKey = "request_id"
