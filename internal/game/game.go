package game

import (
	"errors"
	"fmt"
	"time"

	constants "nombroludo/internal/constants"
	models "nombroludo/internal/models"
	util "nombroludo/internal/util"
)

var (
	ErrInvalidGuessFormat   = errors.New(constants.ErrorCodeInvalidGuessFormat)
	ErrNotYourTurn          = errors.New(constants.ErrorCodeNotYourTurn)
	ErrMatchAlreadyTerminal = errors.New(constants.ErrorCodeMatchAlreadyTerminal)
	ErrMatchNotStarted      = errors.New(constants.ErrorCodeMatchNotStarted)
	ErrLobbyUnavailable     = errors.New(constants.ErrorCodeLobbyUnavailable)
	ErrOpponentStillActive  = errors.New(constants.ErrorCodeOpponentStillActive)
	ErrNotAPlayer           = errors.New(constants.ErrorCodeNotAPlayer)
)

// ValidateDigits checks the shared secret/guess format: exactly four
// decimal digits, all distinct. Leading zeros are allowed.
func ValidateDigits(candidate string) (string, error) {
	if len(candidate) != constants.SecretLength {
		return "", ErrInvalidGuessFormat
	}
	var seen [10]bool
	for i := 0; i < len(candidate); i++ {
		c := candidate[i]
		if c < '0' || c > '9' {
			return "", ErrInvalidGuessFormat
		}
		d := c - '0'
		if seen[d] {
			return "", ErrInvalidGuessFormat
		}
		seen[d] = true
	}
	return candidate, nil
}

// Score computes bulls and cows for a guess against a secret. A digit in
// the right position is a bull; a digit present elsewhere in the secret
// is a cow. Both inputs must already be validated.
func Score(guess, secret string) models.GuessResult {
	var result models.GuessResult
	for i := 0; i < constants.SecretLength; i++ {
		if guess[i] == secret[i] {
			result.Bulls++
			continue
		}
		for j := 0; j < constants.SecretLength; j++ {
			if guess[i] == secret[j] {
				result.Cows++
				break
			}
		}
	}
	return result
}

// DisplayResult renders a score the way the game client shows it,
// e.g. "3T 0V".
func DisplayResult(r models.GuessResult) string {
	return fmt.Sprintf("%dT %dV", r.Bulls, r.Cows)
}

// IsWinning reports whether a score wins the match. Four bulls is the
// unique win condition; digit order is already encoded in the bull count.
func IsWinning(r models.GuessResult) bool {
	return r.Bulls == constants.SecretLength
}

// NewMatch creates the AwaitingOpponent aggregate for a host who has
// registered a validated secret. The starting turn is chosen by coin
// flip at creation and takes effect once the opponent joins.
func NewMatch(id, lobbyID, hostName, hostSecret, mode string, now time.Time) *models.Match {
	firstTurn := util.RandomFirstTurn()
	return &models.Match{
		ID:      id,
		LobbyID: lobbyID,
		Player1: models.PlayerSlot{
			Name:       hostName,
			Secret:     hostSecret,
			LastActive: now,
		},
		Mode:      mode,
		Status:    constants.StatusWaiting,
		EndReason: constants.EndReasonNone,
		FirstTurn: firstTurn,
		Turn:      firstTurn,
		GuessLog:  []models.GuessRecord{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Join seats the second player and moves the match to playing. The
// caller has already validated the secret and checked the lobby.
func Join(m *models.Match, name, secret string, now time.Time) error {
	if m.Terminal() {
		return ErrMatchAlreadyTerminal
	}
	if m.Status != constants.StatusWaiting {
		return ErrLobbyUnavailable
	}
	m.Player2 = models.PlayerSlot{
		Name:       name,
		Secret:     secret,
		LastActive: now,
	}
	m.Status = constants.StatusPlaying
	m.UpdatedAt = now
	return nil
}

// ApplyGuess runs one guess submission against the match. Preconditions
// are checked in contract order: terminal state, then turn ownership in
// classic mode, then guess format. On a win the match completes;
// otherwise classic mode flips the turn.
func ApplyGuess(m *models.Match, player int, guess string, now time.Time) (models.GuessRecord, error) {
	if m.Slot(player) == nil {
		return models.GuessRecord{}, ErrNotAPlayer
	}
	if m.Terminal() {
		return models.GuessRecord{}, ErrMatchAlreadyTerminal
	}
	if m.Status != constants.StatusPlaying {
		return models.GuessRecord{}, ErrMatchNotStarted
	}
	if m.Mode == constants.ModeClassic && player != m.Turn {
		return models.GuessRecord{}, ErrNotYourTurn
	}
	guess, err := ValidateDigits(guess)
	if err != nil {
		return models.GuessRecord{}, err
	}

	opponent := m.Slot(m.Opponent(player))
	if opponent.Secret == "" {
		panic("game: match is playing with a missing opponent secret")
	}

	result := Score(guess, opponent.Secret)
	record := models.GuessRecord{
		Player:    player,
		Guess:     guess,
		Result:    result,
		Display:   DisplayResult(result),
		Timestamp: now,
	}
	m.GuessLog = append(m.GuessLog, record)
	m.Slot(player).LastActive = now
	m.UpdatedAt = now

	if IsWinning(result) {
		m.Winner = player
		m.EndReason = constants.EndReasonWin
		m.Status = constants.StatusCompleted
		return record, nil
	}
	if m.Mode == constants.ModeClassic {
		m.Turn = m.Opponent(player)
	}
	return record, nil
}

// Leave forfeits the match in favor of the opponent. Matches still
// waiting for an opponent are cancelled through the lobby instead.
func Leave(m *models.Match, player int, now time.Time) error {
	if m.Slot(player) == nil {
		return ErrNotAPlayer
	}
	if m.Terminal() {
		return ErrMatchAlreadyTerminal
	}
	if m.Status != constants.StatusPlaying {
		return ErrMatchNotStarted
	}
	m.Winner = m.Opponent(player)
	m.EndReason = constants.EndReasonOpponentLeft
	m.Status = constants.StatusCompleted
	m.UpdatedAt = now
	return nil
}

// ClaimInactivityTimeout forfeits the claimant's opponent when their
// last-active timestamp is older than threshold. The check is poll
// based; callers invoke it on whatever cadence they like.
func ClaimInactivityTimeout(m *models.Match, claimant int, threshold time.Duration, now time.Time) error {
	if m.Slot(claimant) == nil {
		return ErrNotAPlayer
	}
	if m.Terminal() {
		return ErrMatchAlreadyTerminal
	}
	if m.Status != constants.StatusPlaying {
		return ErrMatchNotStarted
	}
	opponent := m.Slot(m.Opponent(claimant))
	if now.Sub(opponent.LastActive) <= threshold {
		return ErrOpponentStillActive
	}
	m.Winner = claimant
	m.EndReason = constants.EndReasonOpponentInactive
	m.Status = constants.StatusCompleted
	m.UpdatedAt = now
	return nil
}

// Heartbeat records player liveness for the inactivity check.
func Heartbeat(m *models.Match, player int, now time.Time) error {
	slot := m.Slot(player)
	if slot == nil {
		return ErrNotAPlayer
	}
	if m.Terminal() {
		return ErrMatchAlreadyTerminal
	}
	slot.LastActive = now
	m.UpdatedAt = now
	return nil
}
