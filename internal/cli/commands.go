package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"porramusical/internal/domain"
	"porramusical/internal/metadata"
	"porramusical/internal/route"
	"porramusical/internal/syncer"
)

func newCreateCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "create NAME",
		Short: "Create a game and become its moderator",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			clientID, err := e.ids.ClientID(ctx)
			if err != nil {
				return err
			}

			g, err := syncer.Create(ctx, e.store, strings.Join(args, " "), clientID)
			if err != nil {
				return err
			}
			if err := e.ids.SetModerator(ctx, g.ID, clientID); err != nil {
				return err
			}

			fmt.Fprintf(e.out, "Created %q\n", g.Name)
			fmt.Fprintf(e.out, "Game ID: %s\n", g.ID)
			fmt.Fprintf(e.out, "Share:   %s\n", route.ShareLink(e.baseURL(), g.ID))
			return nil
		},
	}
}

func newShowCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:     "show GAME",
		Aliases: []string{"open"},
		Short:   "Show a game by ID or share link",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			session, g, err := e.openGame(ctx, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			local, _, err := e.ids.LocalParticipant(ctx, g)
			if err != nil {
				return err
			}
			renderGame(e.out, g, local.ID)
			return nil
		},
	}
}

func newJoinCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "join GAME NAME",
		Short: "Add a participant and play as them on this device",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			session, g, err := e.openGame(ctx, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			if err := requirePhase(g, domain.PhaseSubmission); err != nil {
				return err
			}

			name := strings.TrimSpace(strings.Join(args[1:], " "))
			if name == "" {
				return errors.New("participant name is required")
			}

			applied, err := e.apply(ctx, session, domain.AddParticipantMutation(name))
			if err != nil {
				return err
			}

			if !applied {
				existing, ok := g.ParticipantByName(name)
				if !ok {
					return fmt.Errorf("could not add %q", name)
				}
				name = existing.Name
				fmt.Fprintf(e.out, "%s is already in the game\n", name)
			} else {
				fmt.Fprintf(e.out, "Joined %q as %s\n", g.Name, name)
			}

			return e.ids.SetLocalParticipant(ctx, g.ID, name)
		},
	}
}

func newSongCmd(opts *Options) *cobra.Command {
	var title, artist, by string

	cmd := &cobra.Command{
		Use:   "song GAME URL",
		Short: "Add a song; title and artist are looked up when not given",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			session, g, err := e.openGame(ctx, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			if err := requirePhase(g, domain.PhaseSubmission); err != nil {
				return err
			}

			submitter, err := e.actingParticipant(ctx, g, by)
			if err != nil {
				return err
			}

			mediaURL := strings.TrimSpace(args[1])
			if mediaURL == "" {
				return errors.New("song link is required")
			}

			if strings.TrimSpace(title) == "" || strings.TrimSpace(artist) == "" {
				lookup := metadata.NewLookup(metadata.NewOEmbedExtractor(opts.OEmbedURL, nil))
				info, err := lookup.Do(ctx, mediaURL)
				if err != nil {
					return fmt.Errorf("%w (use --title and --artist)", err)
				}
				if strings.TrimSpace(title) == "" {
					title = info.Title
				}
				if strings.TrimSpace(artist) == "" {
					artist = info.Artist
				}
			}

			in := domain.SongInput{
				Title:       strings.TrimSpace(title),
				Artist:      strings.TrimSpace(artist),
				YouTubeURL:  mediaURL,
				SubmittedBy: submitter.ID,
			}
			if _, err := e.apply(ctx, session, domain.AddSongMutation(in)); err != nil {
				return err
			}

			fmt.Fprintf(e.out, "Added %s - %s for %s\n", in.Artist, in.Title, submitter.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "song title")
	cmd.Flags().StringVar(&artist, "artist", "", "main artist")
	cmd.Flags().StringVar(&by, "by", "", "participant adding the song (default: the one you joined as)")

	return cmd
}

func newVoteCmd(opts *Options) *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:   "vote GAME SONG GUESS",
		Short: "Guess who submitted a song (SONG is its number or ID)",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			session, g, err := e.openGame(ctx, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			if err := requirePhase(g, domain.PhaseVoting); err != nil {
				return err
			}

			voter, err := e.actingParticipant(ctx, g, as)
			if err != nil {
				return err
			}
			song, n, err := resolveSong(g, args[1])
			if err != nil {
				return err
			}
			guessName := strings.Join(args[2:], " ")
			guess, ok := g.ParticipantByName(guessName)
			if !ok {
				return fmt.Errorf("%w: %q is not in this game", ErrNoParticipant, guessName)
			}

			vote := domain.Vote{VoterID: voter.ID, SongID: song.ID, GuessedParticipantID: guess.ID}
			if _, err := e.apply(ctx, session, domain.CastVoteMutation(vote)); err != nil {
				return err
			}

			fmt.Fprintf(e.out, "%s thinks song #%d was brought by %s\n", voter.Name, n, guess.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "participant voting (default: the one you joined as)")

	return cmd
}

func newRevealCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "reveal GAME SONG",
		Short: "Reveal who submitted a song (moderator)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			session, g, err := e.openGame(ctx, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			if err := e.requireModerator(ctx, g); err != nil {
				return err
			}
			if err := requirePhase(g, domain.PhaseReveal); err != nil {
				return err
			}

			song, n, err := resolveSong(g, args[1])
			if err != nil {
				return err
			}

			applied, err := e.apply(ctx, session, domain.RevealSongMutation(song.ID))
			if err != nil {
				return err
			}
			if !applied {
				fmt.Fprintf(e.out, "Song #%d was already revealed\n", n)
			}

			current, _ := session.Current()
			submitter, _ := current.Participant(song.SubmittedBy)
			fmt.Fprintf(e.out, "Song #%d %s - %s was brought by %s\n\n", n, song.Artist, song.Title, displayName(submitter))
			renderScores(e.out, "Live scores", domain.LiveScores(current))
			return nil
		},
	}
}

func newAdvanceCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "advance GAME",
		Short: "Move the game to its next phase (moderator only for results)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			session, g, err := e.openGame(ctx, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			next, ok := g.Phase.Next()
			if !ok {
				return fmt.Errorf("%w: the game is over, use 'porra reset' to play again", domain.ErrTransitionNotAllowed)
			}
			// Results close the reveal, which the moderator runs
			if next == domain.PhaseResults {
				if err := e.requireModerator(ctx, g); err != nil {
					return err
				}
			}
			if err := domain.CheckTransition(g, next); err != nil {
				return err
			}

			if _, err := e.apply(ctx, session, domain.SetPhaseMutation(next)); err != nil {
				return err
			}

			fmt.Fprintf(e.out, "%q moved to %s\n", g.Name, next)
			if next == domain.PhaseResults {
				current, _ := session.Current()
				renderScores(e.out, "Final scores", domain.FinalScores(current))
			}
			return nil
		},
	}
}

func newResetCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset GAME",
		Short: "Start a finished game over with no participants or songs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			session, g, err := e.openGame(ctx, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			if err := domain.CheckTransition(g, domain.PhaseSubmission); err != nil {
				return err
			}

			if _, err := e.apply(ctx, session, domain.ResetGameMutation()); err != nil {
				return err
			}

			fmt.Fprintf(e.out, "%q was reset\n", g.Name)
			return nil
		},
	}
}

func newWatchCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch GAME",
		Short: "Follow a game live until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			session, g, err := e.openGame(ctx, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			local, _, err := e.ids.LocalParticipant(ctx, g)
			if err != nil {
				return err
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case u, ok := <-session.Updates():
					if !ok {
						if ctx.Err() != nil {
							return nil
						}
						return errors.New("connection to the store was lost")
					}
					if u.NotFound {
						return fmt.Errorf("%w: %s was removed", domain.ErrGameNotFound, g.ID)
					}
					fmt.Fprintln(e.out, strings.Repeat("=", 40))
					renderGame(e.out, u.Game, local.ID)
				}
			}
		},
	}
}
