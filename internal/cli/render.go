package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"porramusical/internal/domain"
)

var medals = map[int]string{1: "🥇", 2: "🥈", 3: "🥉"}

// renderGame prints the game the way the current phase should show it.
// Submitters stay hidden until their song is revealed.
func renderGame(w io.Writer, g *domain.Game, localID string) {
	fmt.Fprintf(w, "%s  [%s]\n", g.Name, g.Phase)

	fmt.Fprintf(w, "\nParticipants (%d):\n", len(g.Participants))
	for _, p := range g.Participants {
		marker := " "
		if p.ID == localID {
			marker = "*"
		}
		fmt.Fprintf(w, " %s %s\n", marker, p.Name)
	}

	fmt.Fprintf(w, "\nSongs (%d):\n", len(g.Songs))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, s := range g.Songs {
		by := "?"
		if g.Phase == domain.PhaseResults || g.IsRevealed(s.ID) {
			p, _ := g.Participant(s.SubmittedBy)
			by = displayName(p)
		}
		fmt.Fprintf(tw, " #%d\t%s\t%s\t%s\n", i+1, s.Artist, s.Title, by)
	}
	tw.Flush()

	if next, ok := g.Phase.Next(); ok {
		renderReadiness(w, g, next)
	}

	switch g.Phase {
	case domain.PhaseReveal:
		fmt.Fprintln(w)
		renderScores(w, "Live scores", domain.LiveScores(g))
	case domain.PhaseResults:
		fmt.Fprintln(w)
		renderScores(w, "Final scores", domain.FinalScores(g))
	}
}

// renderReadiness prints what is still missing before the next phase
func renderReadiness(w io.Writer, g *domain.Game, next domain.Phase) {
	r := domain.Readiness(g)
	if r.Met() {
		fmt.Fprintf(w, "\nReady for %s\n", next)
		return
	}

	fmt.Fprintf(w, "\nBefore %s:\n", next)
	if r.MissingParticipants > 0 {
		fmt.Fprintf(w, "  %d more participant(s)\n", r.MissingParticipants)
	}
	if r.MissingSongs > 0 {
		fmt.Fprintf(w, "  %d more song(s)\n", r.MissingSongs)
	}
	if r.MissingVotes > 0 {
		fmt.Fprintf(w, "  %d vote(s) missing\n", r.MissingVotes)
	}
	if r.UnrevealedSongs > 0 {
		fmt.Fprintf(w, "  %d song(s) to reveal\n", r.UnrevealedSongs)
	}
}

func renderScores(w io.Writer, title string, scores []domain.Score) {
	fmt.Fprintf(w, "%s:\n", title)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, s := range scores {
		place := medals[s.Rank]
		if place == "" {
			place = fmt.Sprintf("%d.", s.Rank)
		}
		fmt.Fprintf(tw, " %s\t%s\t%d\n", place, s.Name, s.Score)
	}
	tw.Flush()
}

func displayName(p domain.Participant) string {
	if p.Name == "" {
		return "(unknown participant)"
	}
	return p.Name
}
