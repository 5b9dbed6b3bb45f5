package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"porramusical/internal/domain"
	"porramusical/internal/identity"
	"porramusical/internal/route"
	"porramusical/internal/storage/sqlite"
	"porramusical/internal/syncer"
	"porramusical/internal/transport/ws"
)

var (
	// ErrNotModerator is returned when a moderator action is attempted by another client
	ErrNotModerator = errors.New("only the game creator can do this")

	// ErrNoParticipant is returned when the acting participant cannot be determined
	ErrNoParticipant = errors.New("unknown participant")
)

// env is the per-command connection to the store and local identity
type env struct {
	opts   *Options
	out    io.Writer
	logger *slog.Logger
	store  *ws.RemoteStore
	db     *sqlite.Store
	ids    *identity.Store
}

// connect opens the identity database and dials the store server
func connect(cmd *cobra.Command, opts *Options) (*env, error) {
	logger := newLogger(opts, cmd.ErrOrStderr())

	db, err := sqlite.Open(opts.Data)
	if err != nil {
		return nil, fmt.Errorf("open identity store: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	rs, err := ws.Dial(ctx, opts.Server, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to %s: %w", opts.Server, err)
	}

	return &env{
		opts:   opts,
		out:    cmd.OutOrStdout(),
		logger: logger,
		store:  rs,
		db:     db,
		ids:    identity.NewStore(db, sqlite.ErrNotFound),
	}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Debug("close store connection", "error", err)
	}
	if err := e.db.Close(); err != nil {
		e.logger.Debug("close identity store", "error", err)
	}
}

// openGame opens a sync session on the game named by input, an ID or a share
// link, and waits until it resolved
func (e *env) openGame(ctx context.Context, input string) (*syncer.Session, *domain.Game, error) {
	gameID := route.GameIDFromInput(input)

	session, err := syncer.Open(ctx, e.store, gameID, e.logger)
	if err != nil {
		return nil, nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	u, err := session.Wait(waitCtx)
	if err != nil {
		session.Close()
		return nil, nil, fmt.Errorf("load game %s: %w", gameID, err)
	}
	if u.NotFound {
		session.Close()
		return nil, nil, fmt.Errorf("%w: %s (check the link, or start over with 'porra create')", domain.ErrGameNotFound, gameID)
	}

	return session, u.Game, nil
}

// apply runs one mutation through the session
func (e *env) apply(ctx context.Context, session *syncer.Session, m domain.Mutation) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()
	return session.Apply(ctx, m)
}

// requireModerator checks this client holds the game's moderator token
func (e *env) requireModerator(ctx context.Context, g *domain.Game) error {
	ok, err := e.ids.IsModerator(ctx, g)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotModerator
	}
	return nil
}

// actingParticipant resolves --as/--by, falling back to the participant this
// client joined as
func (e *env) actingParticipant(ctx context.Context, g *domain.Game, name string) (domain.Participant, error) {
	if name != "" {
		p, ok := g.ParticipantByName(name)
		if !ok {
			return domain.Participant{}, fmt.Errorf("%w: %q is not in this game", ErrNoParticipant, name)
		}
		return p, nil
	}

	p, ok, err := e.ids.LocalParticipant(ctx, g)
	if err != nil {
		return domain.Participant{}, err
	}
	if !ok {
		return domain.Participant{}, fmt.Errorf("%w: join the game first or name the participant explicitly", ErrNoParticipant)
	}
	return p, nil
}

// baseURL derives the web address of the server from its websocket url
func (e *env) baseURL() string {
	u, err := url.Parse(e.opts.Server)
	if err != nil {
		return e.opts.Server
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

// requirePhase rejects actions outside the phase they belong to
func requirePhase(g *domain.Game, phase domain.Phase) error {
	if g.Phase != phase {
		return fmt.Errorf("%w: the game is in %s, this needs %s", domain.ErrInvalidPhase, g.Phase, phase)
	}
	return nil
}

// resolveSong accepts a 1-based position or a song ID
func resolveSong(g *domain.Game, ref string) (domain.Song, int, error) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(g.Songs) {
		return g.Songs[n-1], n, nil
	}
	for i, s := range g.Songs {
		if s.ID == ref {
			return s, i + 1, nil
		}
	}
	return domain.Song{}, 0, fmt.Errorf("no song %q in this game", ref)
}
