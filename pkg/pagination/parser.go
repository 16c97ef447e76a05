package pagination

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/caesar700/roblox-donation-proxy/pkg/gamepass"
)

// Page is one decoded upstream page.
type Page[T any] struct {
	// Items are the raw records of the page, in upstream order.
	Items []T

	// NextCursor is empty on the last page.
	NextCursor string
}

// Parser decodes one page body.
type Parser[T any] interface {
	ParsePage(body []byte) (Page[T], error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc[T any] func(body []byte) (Page[T], error)

// ParsePage calls f(body).
func (f ParserFunc[T]) ParsePage(body []byte) (Page[T], error) {
	return f(body)
}

// ParseError is a page body that could not be decoded.
type ParseError struct {
	Resource string
	URL      string
	Err      error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s page: %v", e.Resource, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// listResponse is the cursor-paginated envelope used by the JSON APIs.
type listResponse[T any] struct {
	Data           []T     `json:"data"`
	NextPageCursor *string `json:"nextPageCursor"`
}

// gameRecord is one entry of the user games listing.
type gameRecord struct {
	ID        flexInt `json:"id"`
	RootPlace *struct {
		ID flexInt `json:"id"`
	} `json:"rootPlace"`
}

// passRecord is one entry of the game passes listing.
type passRecord struct {
	ID        flexInt    `json:"id"`
	Name      *string    `json:"name"`
	Price     *flexFloat `json:"price"`
	IsForSale *bool      `json:"isForSale"`
	Creator   *struct {
		ID *flexInt `json:"id"`
	} `json:"creator"`
}

func decodeList[T any](body []byte) (listResponse[T], error) {
	var resp listResponse[T]
	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

func cursorOf(c *string) string {
	if c == nil {
		return ""
	}
	return *c
}

// JSONGamesParser decodes a page of a user's games. Entries without an id
// are skipped.
func JSONGamesParser() Parser[gamepass.Collection] {
	return ParserFunc[gamepass.Collection](func(body []byte) (Page[gamepass.Collection], error) {
		resp, err := decodeList[gameRecord](body)
		if err != nil {
			return Page[gamepass.Collection]{}, err
		}

		page := Page[gamepass.Collection]{
			Items:      make([]gamepass.Collection, 0, len(resp.Data)),
			NextCursor: cursorOf(resp.NextPageCursor),
		}
		for _, g := range resp.Data {
			if g.ID == 0 {
				continue
			}
			c := gamepass.Collection{ID: int64(g.ID)}
			if g.RootPlace != nil {
				c.RootPlaceID = int64(g.RootPlace.ID)
			}
			page.Items = append(page.Items, c)
		}
		return page, nil
	})
}

// JSONPassesParser decodes a page of a game's passes into raw records.
func JSONPassesParser() Parser[gamepass.RawPass] {
	return ParserFunc[gamepass.RawPass](func(body []byte) (Page[gamepass.RawPass], error) {
		resp, err := decodeList[passRecord](body)
		if err != nil {
			return Page[gamepass.RawPass]{}, err
		}

		page := Page[gamepass.RawPass]{
			Items:      make([]gamepass.RawPass, 0, len(resp.Data)),
			NextCursor: cursorOf(resp.NextPageCursor),
		}
		for _, p := range resp.Data {
			raw := gamepass.RawPass{
				ID:      int64(p.ID),
				Name:    p.Name,
				ForSale: p.IsForSale,
			}
			if p.Price != nil {
				price := float64(*p.Price)
				raw.Price = &price
			}
			if p.Creator != nil && p.Creator.ID != nil {
				creatorID := int64(*p.Creator.ID)
				raw.CreatorID = &creatorID
			}
			page.Items = append(page.Items, raw)
		}
		return page, nil
	})
}

// universeResponse is the body of the place to universe lookup.
type universeResponse struct {
	UniverseID *flexInt `json:"universeId"`
}

// ParseUniverseID decodes a place to universe lookup. A null universe
// returns 0.
func ParseUniverseID(body []byte) (int64, error) {
	var resp universeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}
	if resp.UniverseID == nil {
		return 0, nil
	}
	return int64(*resp.UniverseID), nil
}

// flexInt accepts a JSON number, a numeric string or null.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		v, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("invalid integer %s", b)
		}
		n = int64(v)
	}
	*f = flexInt(n)
	return nil
}

// flexFloat accepts a JSON number, a numeric string or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %s", b)
	}
	*f = flexFloat(v)
	return nil
}
