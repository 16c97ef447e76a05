package aggregate

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/caesar700/roblox-donation-proxy/pkg/pagination"
)

// PassSource selects where game passes are read from.
type PassSource string

const (
	// SourceJSON reads the structured game-passes API, keyed by universe id.
	SourceJSON PassSource = "json"

	// SourceHTML scrapes the legacy partial render, keyed by place id.
	// Prices and creators are not available from this source.
	SourceHTML PassSource = "html"
)

// ParsePassSource converts a configuration string to a PassSource.
func ParsePassSource(s string) (PassSource, error) {
	switch PassSource(strings.ToLower(strings.TrimSpace(s))) {
	case SourceJSON, "":
		return SourceJSON, nil
	case SourceHTML:
		return SourceHTML, nil
	default:
		return "", fmt.Errorf("unknown pass source %q", s)
	}
}

// Endpoints are the upstream base URLs.
type Endpoints struct {
	// Games serves user games and game passes listings.
	Games string

	// WWW serves the legacy HTML partial.
	WWW string

	// APIs serves the place to universe lookup.
	APIs string
}

// DefaultEndpoints returns the RoProxy mirrors.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Games: "https://games.roproxy.com",
		WWW:   "https://www.roproxy.com",
		APIs:  "https://apis.roproxy.com",
	}
}

// UserGamesURL returns the URL builder for a user's games.
// Format: {games}/v2/users/{userId}/games?limit=50&cursor=...
func (e Endpoints) UserGamesURL() pagination.URLBuilder {
	base := strings.TrimRight(e.Games, "/")
	return func(userID string, req pagination.PageRequest) string {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(req.Limit))
		if req.Cursor != "" {
			q.Set("cursor", req.Cursor)
		}
		return base + "/v2/users/" + url.PathEscape(userID) + "/games?" + q.Encode()
	}
}

// GamePassesURL returns the URL builder for a game's passes.
// Format: {games}/v1/games/{gameId}/game-passes?limit=100&cursor=...
func (e Endpoints) GamePassesURL() pagination.URLBuilder {
	base := strings.TrimRight(e.Games, "/")
	return func(gameID string, req pagination.PageRequest) string {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(req.Limit))
		if req.Cursor != "" {
			q.Set("cursor", req.Cursor)
		}
		return base + "/v1/games/" + url.PathEscape(gameID) + "/game-passes?" + q.Encode()
	}
}

// LegacyPassesURL returns the URL builder for the HTML partial.
// Format: {www}/games/getgamepassesinnerpartial?startIndex=0&maxRows=50&placeId=...
func (e Endpoints) LegacyPassesURL() pagination.URLBuilder {
	base := strings.TrimRight(e.WWW, "/")
	return func(placeID string, req pagination.PageRequest) string {
		q := url.Values{}
		q.Set("startIndex", strconv.Itoa(req.Offset))
		q.Set("maxRows", strconv.Itoa(req.Limit))
		q.Set("placeId", placeID)
		return base + "/games/getgamepassesinnerpartial?" + q.Encode()
	}
}

// PlaceUniverseURL returns the place to universe lookup URL.
func (e Endpoints) PlaceUniverseURL(placeID string) string {
	return strings.TrimRight(e.APIs, "/") + "/universes/v1/places/" + url.PathEscape(placeID) + "/universe"
}
