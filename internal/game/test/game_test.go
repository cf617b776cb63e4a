package main

import (
	"errors"
	"testing"
	"time"

	constants "nombroludo/internal/constants"
	game "nombroludo/internal/game"
	models "nombroludo/internal/models"
)

func playingMatch(t *testing.T, mode, hostSecret, joinerSecret string, turn int) *models.Match {
	t.Helper()
	now := time.Now()
	m := game.NewMatch("match-1", "lobby-1", "Alice", hostSecret, mode, now)
	if err := game.Join(m, "Bob", joinerSecret, now); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	m.Turn = turn
	return m
}

func TestValidateDigits(t *testing.T) {
	valid := []string{"1234", "0987", "5678", "0123"}
	for _, s := range valid {
		got, err := game.ValidateDigits(s)
		if err != nil || got != s {
			t.Errorf("ValidateDigits(%q) = %q, %v, want %q, nil", s, got, err, s)
		}
	}

	invalid := []string{"", "123", "12345", "12a4", "1123", "1111", "12 4", "٣٤٥٦"}
	for _, s := range invalid {
		if _, err := game.ValidateDigits(s); !errors.Is(err, game.ErrInvalidGuessFormat) {
			t.Errorf("ValidateDigits(%q) = %v, want ErrInvalidGuessFormat", s, err)
		}
	}
}

func TestScoreSelfGuessIsFourBulls(t *testing.T) {
	for _, secret := range []string{"1234", "0987", "5062", "9876"} {
		r := game.Score(secret, secret)
		if r.Bulls != 4 || r.Cows != 0 {
			t.Errorf("Score(%q, %q) = %+v, want 4 bulls 0 cows", secret, secret, r)
		}
		if !game.IsWinning(r) {
			t.Errorf("Score(%q, %q) should be winning", secret, secret)
		}
	}
}

func TestScoreTable(t *testing.T) {
	cases := []struct {
		guess, secret string
		bulls, cows   int
	}{
		{"5671", "5678", 3, 0},
		{"1234", "5678", 0, 0},
		{"4321", "1234", 0, 4},
		{"1243", "1234", 2, 2},
		{"1234", "1234", 4, 0},
		{"8765", "5678", 0, 4},
		{"1567", "5678", 0, 3},
	}
	for _, c := range cases {
		r := game.Score(c.guess, c.secret)
		if r.Bulls != c.bulls || r.Cows != c.cows {
			t.Errorf("Score(%q, %q) = %+v, want %d bulls %d cows", c.guess, c.secret, r, c.bulls, c.cows)
		}
	}
}

func TestScoreBoundsAndBullSymmetry(t *testing.T) {
	secrets := []string{"1234", "5678", "0192", "9081", "4567"}
	for _, guess := range secrets {
		for _, secret := range secrets {
			r := game.Score(guess, secret)
			if r.Bulls+r.Cows > 4 {
				t.Errorf("Score(%q, %q) = %+v exceeds 4 digits", guess, secret, r)
			}
			if reverse := game.Score(secret, guess); reverse.Bulls != r.Bulls {
				t.Errorf("bulls not symmetric for %q/%q: %d vs %d", guess, secret, r.Bulls, reverse.Bulls)
			}
		}
	}
}

func TestDisplayResult(t *testing.T) {
	if got := game.DisplayResult(models.GuessResult{Bulls: 3, Cows: 0}); got != "3T 0V" {
		t.Errorf("DisplayResult = %q, want %q", got, "3T 0V")
	}
	if got := game.DisplayResult(models.GuessResult{Bulls: 0, Cows: 4}); got != "0T 4V" {
		t.Errorf("DisplayResult = %q, want %q", got, "0T 4V")
	}
}

func TestNewMatchStartsWaiting(t *testing.T) {
	m := game.NewMatch("m", "l", "Alice", "1234", constants.ModeClassic, time.Now())
	if m.Status != constants.StatusWaiting {
		t.Errorf("new match status = %q, want waiting", m.Status)
	}
	if m.FirstTurn != constants.PlayerOne && m.FirstTurn != constants.PlayerTwo {
		t.Errorf("first turn = %d, want 1 or 2", m.FirstTurn)
	}
	if m.Turn != m.FirstTurn {
		t.Errorf("turn %d should equal first turn %d before play", m.Turn, m.FirstTurn)
	}
	if m.Player2.Filled() {
		t.Error("player 2 should be empty at creation")
	}
}

func TestJoinMovesMatchToPlaying(t *testing.T) {
	m := game.NewMatch("m", "l", "Alice", "1234", constants.ModeClassic, time.Now())
	if err := game.Join(m, "Bob", "5678", time.Now()); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if m.Status != constants.StatusPlaying {
		t.Errorf("status = %q, want playing", m.Status)
	}
	if m.Player2.Name != "Bob" || m.Player2.Secret != "5678" {
		t.Errorf("player 2 slot not set: %+v", m.Player2)
	}
	if err := game.Join(m, "Carol", "9012", time.Now()); !errors.Is(err, game.ErrLobbyUnavailable) {
		t.Errorf("second join = %v, want ErrLobbyUnavailable", err)
	}
}

func TestApplyGuessClassicScenario(t *testing.T) {
	// Alice holds 1234, Bob holds 5678, Alice to move.
	m := playingMatch(t, constants.ModeClassic, "1234", "5678", constants.PlayerOne)

	record, err := game.ApplyGuess(m, constants.PlayerOne, "5671", time.Now())
	if err != nil {
		t.Fatalf("ApplyGuess failed: %v", err)
	}
	if record.Result.Bulls != 3 || record.Result.Cows != 0 {
		t.Errorf("result = %+v, want 3 bulls 0 cows", record.Result)
	}
	if record.Display != "3T 0V" {
		t.Errorf("display = %q, want %q", record.Display, "3T 0V")
	}
	if m.Turn != constants.PlayerTwo {
		t.Errorf("turn = %d, want player 2 after a non-winning guess", m.Turn)
	}
	if len(m.GuessLog) != 1 {
		t.Errorf("guess log length = %d, want 1", len(m.GuessLog))
	}

	// Bob guesses Alice's number exactly and wins.
	record, err = game.ApplyGuess(m, constants.PlayerTwo, "1234", time.Now())
	if err != nil {
		t.Fatalf("winning guess failed: %v", err)
	}
	if record.Result.Bulls != 4 {
		t.Errorf("winning result = %+v, want 4 bulls", record.Result)
	}
	if m.Winner != constants.PlayerTwo || m.Status != constants.StatusCompleted {
		t.Errorf("winner=%d status=%q, want player 2 completed", m.Winner, m.Status)
	}
	if m.EndReason != constants.EndReasonWin {
		t.Errorf("end reason = %q, want %q", m.EndReason, constants.EndReasonWin)
	}
}

func TestApplyGuessAfterTerminalFails(t *testing.T) {
	m := playingMatch(t, constants.ModeClassic, "1234", "5678", constants.PlayerOne)
	if _, err := game.ApplyGuess(m, constants.PlayerOne, "5678", time.Now()); err != nil {
		t.Fatalf("winning guess failed: %v", err)
	}
	turnBefore := m.Turn
	if _, err := game.ApplyGuess(m, constants.PlayerTwo, "1234", time.Now()); !errors.Is(err, game.ErrMatchAlreadyTerminal) {
		t.Errorf("guess after win = %v, want ErrMatchAlreadyTerminal", err)
	}
	if len(m.GuessLog) != 1 || m.Turn != turnBefore {
		t.Error("terminal match state must not change on late submissions")
	}
}

func TestApplyGuessOutOfTurn(t *testing.T) {
	m := playingMatch(t, constants.ModeClassic, "1234", "5678", constants.PlayerOne)
	_, err := game.ApplyGuess(m, constants.PlayerTwo, "1234", time.Now())
	if !errors.Is(err, game.ErrNotYourTurn) {
		t.Fatalf("out-of-turn guess = %v, want ErrNotYourTurn", err)
	}
	if len(m.GuessLog) != 0 {
		t.Error("guess log must stay empty after a rejected guess")
	}
	if m.Turn != constants.PlayerOne {
		t.Error("turn indicator must not move after a rejected guess")
	}
}

func TestApplyGuessPreconditionOrder(t *testing.T) {
	// Turn violation is reported before guess format in classic mode.
	m := playingMatch(t, constants.ModeClassic, "1234", "5678", constants.PlayerOne)
	if _, err := game.ApplyGuess(m, constants.PlayerTwo, "bad", time.Now()); !errors.Is(err, game.ErrNotYourTurn) {
		t.Errorf("err = %v, want ErrNotYourTurn before format check", err)
	}
	if _, err := game.ApplyGuess(m, constants.PlayerOne, "bad", time.Now()); !errors.Is(err, game.ErrInvalidGuessFormat) {
		t.Errorf("err = %v, want ErrInvalidGuessFormat", err)
	}
}

func TestApplyGuessRapidModeIgnoresTurns(t *testing.T) {
	m := playingMatch(t, constants.ModeRapid, "1234", "5678", constants.PlayerOne)

	if _, err := game.ApplyGuess(m, constants.PlayerTwo, "9871", time.Now()); err != nil {
		t.Fatalf("rapid guess by player 2 failed: %v", err)
	}
	if _, err := game.ApplyGuess(m, constants.PlayerTwo, "9872", time.Now()); err != nil {
		t.Fatalf("consecutive rapid guess failed: %v", err)
	}
	if _, err := game.ApplyGuess(m, constants.PlayerOne, "0123", time.Now()); err != nil {
		t.Fatalf("rapid guess by player 1 failed: %v", err)
	}
	if m.Turn != constants.PlayerOne {
		t.Errorf("rapid mode must not flip the turn indicator, got %d", m.Turn)
	}
	if len(m.GuessLog) != 3 {
		t.Errorf("guess log length = %d, want 3", len(m.GuessLog))
	}
}

func TestApplyGuessWhileWaiting(t *testing.T) {
	m := game.NewMatch("m", "l", "Alice", "1234", constants.ModeClassic, time.Now())
	if _, err := game.ApplyGuess(m, constants.PlayerOne, "5678", time.Now()); !errors.Is(err, game.ErrMatchNotStarted) {
		t.Errorf("guess while waiting = %v, want ErrMatchNotStarted", err)
	}
}

func TestApplyGuessUnknownPlayer(t *testing.T) {
	m := playingMatch(t, constants.ModeClassic, "1234", "5678", constants.PlayerOne)
	if _, err := game.ApplyGuess(m, 3, "5678", time.Now()); !errors.Is(err, game.ErrNotAPlayer) {
		t.Errorf("guess by player 3 = %v, want ErrNotAPlayer", err)
	}
}

func TestLeaveForfeitsToOpponent(t *testing.T) {
	m := playingMatch(t, constants.ModeClassic, "1234", "5678", constants.PlayerOne)
	if err := game.Leave(m, constants.PlayerOne, time.Now()); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if m.Winner != constants.PlayerTwo {
		t.Errorf("winner = %d, want player 2", m.Winner)
	}
	if m.EndReason != constants.EndReasonOpponentLeft {
		t.Errorf("end reason = %q, want %q", m.EndReason, constants.EndReasonOpponentLeft)
	}
	if err := game.Leave(m, constants.PlayerTwo, time.Now()); !errors.Is(err, game.ErrMatchAlreadyTerminal) {
		t.Errorf("second leave = %v, want ErrMatchAlreadyTerminal", err)
	}
}

func TestClaimInactivityTimeout(t *testing.T) {
	now := time.Now()
	m := playingMatch(t, constants.ModeClassic, "1234", "5678", constants.PlayerOne)
	threshold := 2 * time.Minute

	m.Player2.LastActive = now.Add(-time.Minute)
	if err := game.ClaimInactivityTimeout(m, constants.PlayerOne, threshold, now); !errors.Is(err, game.ErrOpponentStillActive) {
		t.Fatalf("claim against fresh opponent = %v, want ErrOpponentStillActive", err)
	}
	if m.Terminal() {
		t.Fatal("match must not end on a rejected claim")
	}

	m.Player2.LastActive = now.Add(-3 * time.Minute)
	if err := game.ClaimInactivityTimeout(m, constants.PlayerOne, threshold, now); err != nil {
		t.Fatalf("claim against stale opponent failed: %v", err)
	}
	if m.Winner != constants.PlayerOne || m.EndReason != constants.EndReasonOpponentInactive {
		t.Errorf("winner=%d reason=%q, want player 1 / %q", m.Winner, m.EndReason, constants.EndReasonOpponentInactive)
	}
}

func TestHeartbeatTouchesSlot(t *testing.T) {
	m := playingMatch(t, constants.ModeClassic, "1234", "5678", constants.PlayerOne)
	stale := time.Now().Add(-time.Hour)
	m.Player1.LastActive = stale
	if err := game.Heartbeat(m, constants.PlayerOne, time.Now()); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if !m.Player1.LastActive.After(stale) {
		t.Error("heartbeat must advance the player's last-active timestamp")
	}
	if err := game.Heartbeat(m, 7, time.Now()); !errors.Is(err, game.ErrNotAPlayer) {
		t.Errorf("heartbeat by non-player = %v, want ErrNotAPlayer", err)
	}
}
