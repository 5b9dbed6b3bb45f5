// Package route maps URL fragments to views and builds share links.
package route

import (
	"net/url"
	"strings"
)

// View names the screen a route leads to
type View string

const (
	ViewHome View = "home"
	ViewGame View = "game"
)

const gamePrefix = "/game/"

// Route is a parsed location
type Route struct {
	View   View
	GameID string
}

// Parse reads a fragment such as "#/game/{id}" or a path "/game/{id}".
// Anything that does not name a game leads home.
func Parse(fragment string) Route {
	fragment = strings.TrimSpace(fragment)
	fragment = strings.TrimPrefix(fragment, "#")

	id, ok := strings.CutPrefix(fragment, gamePrefix)
	if !ok {
		return Route{View: ViewHome}
	}

	id = strings.Trim(id, "/")
	if id == "" || strings.Contains(id, "/") {
		return Route{View: ViewHome}
	}
	if unescaped, err := url.PathUnescape(id); err == nil {
		id = unescaped
	}
	return Route{View: ViewGame, GameID: id}
}

// GameIDFromInput accepts a raw game ID or a pasted share link
func GameIDFromInput(input string) string {
	id := strings.TrimSpace(input)
	if _, after, found := strings.Cut(id, "#/game/"); found {
		id = after
	}
	return strings.Trim(id, "/ ")
}

// GameFragment returns the fragment that routes to a game
func GameFragment(gameID string) string {
	return "#" + gamePrefix + url.PathEscape(gameID)
}

// ShareLink returns the link other participants open to join a game
func ShareLink(base, gameID string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/#")
	return base + "/" + GameFragment(gameID)
}
