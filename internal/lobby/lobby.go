package lobby

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	constants "nombroludo/internal/constants"
	game "nombroludo/internal/game"
	models "nombroludo/internal/models"
	store "nombroludo/internal/store"
	util "nombroludo/internal/util"
)

var (
	ErrLobbyNotFound     = errors.New(constants.ErrorCodeLobbyNotFound)
	ErrMatchNotFound     = errors.New(constants.ErrorCodeMatchNotFound)
	ErrInvalidAccessCode = errors.New(constants.ErrorCodeInvalidAccessCode)
	ErrInvalidName       = errors.New(constants.ErrorCodeInvalidName)
	ErrInvalidMode       = errors.New(constants.ErrorCodeInvalidMode)
)

// errMatchInUse signals a sweep mutator that the match changed hands
// between the candidate query and the atomic recheck.
var errMatchInUse = errors.New("match in use")

// Directory is the matchmaking front of the engine: it owns lobby
// records, pairs them with their backing matches, and funnels every
// mutation through the store's atomic update.
type Directory struct {
	store   store.Store
	idleTTL time.Duration
}

func NewDirectory(s store.Store, idleTTL time.Duration) *Directory {
	return &Directory{store: s, idleTTL: idleTTL}
}

// CreateResult reports a freshly created lobby/match pair. AccessCode is
// only set for private lobbies and is the one time the code is handed out.
type CreateResult struct {
	Lobby      *models.Lobby
	Match      *models.Match
	AccessCode string
}

// Create registers a host with a validated secret, creating the waiting
// match and its lobby entry. Private lobbies get a six-character
// upper-case alphanumeric code; collisions are accepted, not mitigated.
func (d *Directory) Create(hostName, hostSecret, mode string, private bool, now time.Time) (*CreateResult, error) {
	hostName = strings.TrimSpace(hostName)
	if hostName == "" {
		return nil, ErrInvalidName
	}
	if mode != constants.ModeClassic && mode != constants.ModeRapid {
		return nil, ErrInvalidMode
	}
	hostSecret, err := game.ValidateDigits(hostSecret)
	if err != nil {
		return nil, err
	}

	matchID := uuid.NewString()
	lobbyID := uuid.NewString()
	accessCode := ""
	if private {
		accessCode = util.RandomAccessCode(constants.AccessCodeLength)
	}

	match := game.NewMatch(matchID, lobbyID, hostName, hostSecret, mode, now)
	lby := &models.Lobby{
		ID:         lobbyID,
		MatchID:    matchID,
		HostName:   hostName,
		Mode:       mode,
		Status:     constants.StatusWaiting,
		Private:    private,
		AccessCode: accessCode,
		CreatedAt:  now,
		LastActive: now,
	}

	if err := d.store.Put(constants.CollectionMatches, matchID, match); err != nil {
		return nil, d.wrapSync("put", constants.CollectionMatches, matchID, err)
	}
	if err := d.store.Put(constants.CollectionLobbies, lobbyID, lby); err != nil {
		return nil, d.wrapSync("put", constants.CollectionLobbies, lobbyID, err)
	}

	util.LogInfo("Created %s lobby %s (private=%v) for host %q, match %s", mode, lobbyID, private, hostName, matchID)
	return &CreateResult{Lobby: lby, Match: match, AccessCode: accessCode}, nil
}

// ListOpen returns waiting public lobbies, freshest first.
func (d *Directory) ListOpen() ([]*models.Lobby, error) {
	docs, err := d.store.Query(constants.CollectionLobbies, func(_ string, doc any) bool {
		l, ok := doc.(*models.Lobby)
		return ok && l.Status == constants.StatusWaiting && !l.Private
	})
	if err != nil {
		return nil, d.wrapSync("query", constants.CollectionLobbies, "", err)
	}
	lobbies := lo.Map(docs, func(doc any, _ int) *models.Lobby { return doc.(*models.Lobby) })
	sort.Slice(lobbies, func(i, j int) bool { return lobbies[i].CreatedAt.After(lobbies[j].CreatedAt) })
	return lobbies, nil
}

// ListActive returns matches currently being played, freshest first.
// These are the matches open to spectators.
func (d *Directory) ListActive() ([]*models.Match, error) {
	docs, err := d.store.Query(constants.CollectionMatches, func(_ string, doc any) bool {
		m, ok := doc.(*models.Match)
		return ok && m.Status == constants.StatusPlaying
	})
	if err != nil {
		return nil, d.wrapSync("query", constants.CollectionMatches, "", err)
	}
	matches := lo.Map(docs, func(doc any, _ int) *models.Match { return doc.(*models.Match) })
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	return matches, nil
}

// JoinResult reports a successful join: the joiner is always player 2.
type JoinResult struct {
	Lobby *models.Lobby
	Match *models.Match
}

// Join seats a second player. The lobby is the entry point, so its own
// status gates before any match-level check; the match update is the
// atomic step that decides a race between two joiners.
func (d *Directory) Join(lobbyID, joinerName, joinerSecret, accessCode string, now time.Time) (*JoinResult, error) {
	doc, err := d.store.Get(constants.CollectionLobbies, lobbyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Already swept or never existed; to a joiner both look the
			// same as a lost race.
			return nil, game.ErrLobbyUnavailable
		}
		return nil, d.wrapSync("get", constants.CollectionLobbies, lobbyID, err)
	}
	lby := doc.(*models.Lobby)
	if lby.Status != constants.StatusWaiting {
		return nil, game.ErrLobbyUnavailable
	}
	if lby.Private && accessCode != lby.AccessCode {
		return nil, ErrInvalidAccessCode
	}

	joinerName = strings.TrimSpace(joinerName)
	if joinerName == "" {
		return nil, ErrInvalidName
	}
	joinerSecret, err = game.ValidateDigits(joinerSecret)
	if err != nil {
		return nil, err
	}

	updated, err := d.store.Update(constants.CollectionMatches, lby.MatchID, func(doc any) (store.Cloneable, error) {
		m := doc.(*models.Match)
		if err := game.Join(m, joinerName, joinerSecret, now); err != nil {
			return nil, err
		}
		return m, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, d.passOrWrap("update", constants.CollectionMatches, lby.MatchID, err)
	}
	match := updated.(*models.Match)

	lobbyDoc, err := d.store.Update(constants.CollectionLobbies, lobbyID, func(doc any) (store.Cloneable, error) {
		l := doc.(*models.Lobby)
		l.Status = constants.StatusPlaying
		l.JoinerName = joinerName
		l.LastActive = now
		return l, nil
	})
	if err != nil {
		return nil, d.passOrWrap("update", constants.CollectionLobbies, lobbyID, err)
	}

	util.LogInfo("Player %q joined lobby %s, match %s now playing", joinerName, lobbyID, match.ID)
	return &JoinResult{Lobby: lobbyDoc.(*models.Lobby), Match: match}, nil
}

// JoinByCode finds a waiting private lobby by its access code and joins
// it. This is how the original client joins without knowing the lobby id.
func (d *Directory) JoinByCode(accessCode, joinerName, joinerSecret string, now time.Time) (*JoinResult, error) {
	docs, err := d.store.Query(constants.CollectionLobbies, func(_ string, doc any) bool {
		l, ok := doc.(*models.Lobby)
		return ok && l.Private && l.Status == constants.StatusWaiting && l.AccessCode == accessCode
	})
	if err != nil {
		return nil, d.wrapSync("query", constants.CollectionLobbies, "", err)
	}
	if len(docs) == 0 {
		return nil, game.ErrLobbyUnavailable
	}
	lby := docs[0].(*models.Lobby)
	return d.Join(lby.ID, joinerName, joinerSecret, accessCode, now)
}

// SubmitGuess applies one guess to the match under the store's atomic
// update, so two racing submissions cannot both be accepted. When the
// guess wins, the lobby entry is removed.
func (d *Directory) SubmitGuess(matchID string, player int, guess string, now time.Time) (models.GuessRecord, *models.Match, error) {
	var record models.GuessRecord
	updated, err := d.store.Update(constants.CollectionMatches, matchID, func(doc any) (store.Cloneable, error) {
		m := doc.(*models.Match)
		rec, err := game.ApplyGuess(m, player, guess, now)
		if err != nil {
			return nil, err
		}
		record = rec
		return m, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.GuessRecord{}, nil, ErrMatchNotFound
		}
		return models.GuessRecord{}, nil, d.passOrWrap("update", constants.CollectionMatches, matchID, err)
	}
	match := updated.(*models.Match)
	if match.Terminal() {
		d.removeLobbyFor(match)
	}
	return record, match, nil
}

// Leave forfeits a playing match in favor of the opponent and drops its
// lobby entry.
func (d *Directory) Leave(matchID string, player int, now time.Time) (*models.Match, error) {
	updated, err := d.store.Update(constants.CollectionMatches, matchID, func(doc any) (store.Cloneable, error) {
		m := doc.(*models.Match)
		if err := game.Leave(m, player, now); err != nil {
			return nil, err
		}
		return m, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, d.passOrWrap("update", constants.CollectionMatches, matchID, err)
	}
	match := updated.(*models.Match)
	d.removeLobbyFor(match)
	util.LogInfo("Player %d left match %s, winner is player %d", player, matchID, match.Winner)
	return match, nil
}

// ClaimTimeout forfeits the claimant's opponent after prolonged
// inactivity. The staleness threshold belongs to the caller.
func (d *Directory) ClaimTimeout(matchID string, claimant int, threshold time.Duration, now time.Time) (*models.Match, error) {
	updated, err := d.store.Update(constants.CollectionMatches, matchID, func(doc any) (store.Cloneable, error) {
		m := doc.(*models.Match)
		if err := game.ClaimInactivityTimeout(m, claimant, threshold, now); err != nil {
			return nil, err
		}
		return m, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, d.passOrWrap("update", constants.CollectionMatches, matchID, err)
	}
	match := updated.(*models.Match)
	d.removeLobbyFor(match)
	util.LogInfo("Match %s forfeited for inactivity, winner is player %d", matchID, match.Winner)
	return match, nil
}

// Heartbeat touches a player's last-active timestamp, and the lobby's
// while it is still waiting so the idle sweep spares it.
func (d *Directory) Heartbeat(matchID string, player int, now time.Time) (*models.Match, error) {
	updated, err := d.store.Update(constants.CollectionMatches, matchID, func(doc any) (store.Cloneable, error) {
		m := doc.(*models.Match)
		if err := game.Heartbeat(m, player, now); err != nil {
			return nil, err
		}
		return m, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, d.passOrWrap("update", constants.CollectionMatches, matchID, err)
	}
	match := updated.(*models.Match)
	if match.Status == constants.StatusWaiting {
		_, err := d.store.Update(constants.CollectionLobbies, match.LobbyID, func(doc any) (store.Cloneable, error) {
			l := doc.(*models.Lobby)
			l.LastActive = now
			return l, nil
		})
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			util.LogWarn("Failed to touch lobby %s: %v", match.LobbyID, err)
		}
	}
	return match, nil
}

// Cancel removes a match that is still waiting for an opponent, along
// with its lobby entry. The waiting check and the cancellation happen
// in one atomic update, so a join racing the cancel loses cleanly
// instead of being seated in a deleted match. A second cancel of the
// same id reports MatchNotFound rather than silently succeeding.
func (d *Directory) Cancel(matchID string, now time.Time) error {
	updated, err := d.store.Update(constants.CollectionMatches, matchID, func(doc any) (store.Cloneable, error) {
		m := doc.(*models.Match)
		if m.Status != constants.StatusWaiting {
			return nil, game.ErrLobbyUnavailable
		}
		m.Status = constants.StatusCancelled
		m.UpdatedAt = now
		return m, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMatchNotFound
		}
		return d.passOrWrap("update", constants.CollectionMatches, matchID, err)
	}
	match := updated.(*models.Match)
	if err := d.store.Delete(constants.CollectionMatches, matchID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return d.wrapSync("delete", constants.CollectionMatches, matchID, err)
	}
	if err := d.store.Delete(constants.CollectionLobbies, match.LobbyID); err != nil && !errors.Is(err, store.ErrNotFound) {
		util.LogWarn("Failed to delete lobby %s for cancelled match %s: %v", match.LobbyID, matchID, err)
	}
	util.LogInfo("Cancelled waiting match %s and lobby %s", matchID, match.LobbyID)
	return nil
}

// Match returns a snapshot of one match.
func (d *Directory) Match(matchID string) (*models.Match, error) {
	doc, err := d.store.Get(constants.CollectionMatches, matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, d.wrapSync("get", constants.CollectionMatches, matchID, err)
	}
	return doc.(*models.Match), nil
}

// Lobby returns a snapshot of one lobby.
func (d *Directory) Lobby(lobbyID string) (*models.Lobby, error) {
	doc, err := d.store.Get(constants.CollectionLobbies, lobbyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrLobbyNotFound
		}
		return nil, d.wrapSync("get", constants.CollectionLobbies, lobbyID, err)
	}
	return doc.(*models.Lobby), nil
}

// WatchMatch subscribes to every change of one match. The returned
// cancel func must be called when the watcher goes away.
func (d *Directory) WatchMatch(matchID string) (<-chan store.Event, func()) {
	return d.store.Subscribe(constants.CollectionMatches, func(id string, _ any) bool {
		return id == matchID
	})
}

// SweepIdleLobbies removes lobbies that sat waiting past the idle TTL,
// along with their matches. Each candidate is rechecked and cancelled in
// one atomic update, so a join landing after the candidate query keeps
// its seat and the pair stays alive.
func (d *Directory) SweepIdleLobbies(now time.Time) int {
	docs, err := d.store.Query(constants.CollectionLobbies, func(_ string, doc any) bool {
		l, ok := doc.(*models.Lobby)
		return ok && l.Status == constants.StatusWaiting && now.Sub(l.LastActive) > d.idleTTL
	})
	if err != nil {
		util.LogWarn("Idle lobby sweep query failed: %v", err)
		return 0
	}
	removed := 0
	for _, doc := range docs {
		l := doc.(*models.Lobby)
		_, err := d.store.Update(constants.CollectionMatches, l.MatchID, func(doc any) (store.Cloneable, error) {
			m := doc.(*models.Match)
			if m.Status != constants.StatusWaiting || now.Sub(m.UpdatedAt) <= d.idleTTL {
				return nil, errMatchInUse
			}
			m.Status = constants.StatusCancelled
			m.UpdatedAt = now
			return m, nil
		})
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Orphaned lobby; its match is already gone.
				if derr := d.store.Delete(constants.CollectionLobbies, l.ID); derr != nil && !errors.Is(derr, store.ErrNotFound) {
					util.LogWarn("Failed to sweep orphaned lobby %s: %v", l.ID, derr)
				}
			} else if !errors.Is(err, errMatchInUse) {
				util.LogWarn("Failed to sweep match %s for lobby %s: %v", l.MatchID, l.ID, err)
			}
			continue
		}
		if err := d.store.Delete(constants.CollectionMatches, l.MatchID); err != nil && !errors.Is(err, store.ErrNotFound) {
			util.LogWarn("Failed to sweep match %s for lobby %s: %v", l.MatchID, l.ID, err)
		}
		if err := d.store.Delete(constants.CollectionLobbies, l.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			util.LogWarn("Failed to sweep lobby %s: %v", l.ID, err)
		}
		removed++
	}
	if removed > 0 {
		util.LogInfo("Cleaned up %d idle lobby pair%s", removed, util.Plural(removed))
	}
	return removed
}

// SweepStaleMatches garbage-collects matches nobody will touch again:
// terminal ones past the retention window, and playing ones both
// players walked away from without leaving. The staleness condition is
// rechecked inside the atomic update before anything is deleted.
func (d *Directory) SweepStaleMatches(retention time.Duration, now time.Time) int {
	stale := func(m *models.Match) bool {
		if m.Terminal() {
			return now.Sub(m.UpdatedAt) > retention
		}
		if m.Status == constants.StatusPlaying {
			return now.Sub(m.Player1.LastActive) > retention && now.Sub(m.Player2.LastActive) > retention
		}
		return false
	}
	docs, err := d.store.Query(constants.CollectionMatches, func(_ string, doc any) bool {
		m, ok := doc.(*models.Match)
		return ok && stale(m)
	})
	if err != nil {
		util.LogWarn("Stale match sweep query failed: %v", err)
		return 0
	}
	removed := 0
	for _, doc := range docs {
		m := doc.(*models.Match)
		if _, err := d.store.Update(constants.CollectionMatches, m.ID, func(doc any) (store.Cloneable, error) {
			cur := doc.(*models.Match)
			if !stale(cur) {
				return nil, errMatchInUse
			}
			if !cur.Terminal() {
				cur.Status = constants.StatusCancelled
				cur.UpdatedAt = now
			}
			return cur, nil
		}); err != nil {
			if !errors.Is(err, errMatchInUse) && !errors.Is(err, store.ErrNotFound) {
				util.LogWarn("Failed to sweep stale match %s: %v", m.ID, err)
			}
			continue
		}
		if err := d.store.Delete(constants.CollectionMatches, m.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			util.LogWarn("Failed to delete stale match %s: %v", m.ID, err)
			continue
		}
		d.removeLobbyFor(m)
		removed++
	}
	if removed > 0 {
		util.LogInfo("Cleaned up %d stale match record%s", removed, util.Plural(removed))
	}
	return removed
}

func (d *Directory) removeLobbyFor(match *models.Match) {
	if match.LobbyID == "" {
		return
	}
	if err := d.store.Delete(constants.CollectionLobbies, match.LobbyID); err != nil && !errors.Is(err, store.ErrNotFound) {
		util.LogWarn("Failed to remove lobby %s for terminal match %s: %v", match.LobbyID, match.ID, err)
	}
}

// passOrWrap lets domain errors through untouched and wraps anything
// else as a SyncError so callers can tell a lost precondition from a
// failing adapter.
func (d *Directory) passOrWrap(op, collection, id string, err error) error {
	for _, domain := range []error{
		game.ErrInvalidGuessFormat,
		game.ErrNotYourTurn,
		game.ErrMatchAlreadyTerminal,
		game.ErrMatchNotStarted,
		game.ErrLobbyUnavailable,
		game.ErrOpponentStillActive,
		game.ErrNotAPlayer,
	} {
		if errors.Is(err, domain) {
			return err
		}
	}
	return d.wrapSync(op, collection, id, err)
}

func (d *Directory) wrapSync(op, collection, id string, err error) error {
	return &store.SyncError{Op: op, Collection: collection, ID: id, Err: err}
}
