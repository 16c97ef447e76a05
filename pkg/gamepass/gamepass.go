// Package gamepass defines the game pass domain types and the normalization
// step that turns raw upstream records into retained items.
package gamepass

import (
	"encoding/json"
	"sort"
)

// DefaultName is used when an upstream record carries no name.
const DefaultName = "GamePass"

// Item is a sellable game pass as returned to clients.
//
// Priced items always encode as {id, name, price, creatorId}, with a missing
// creator as 0. Unpriced items come from sources that list neither price nor
// creator (the legacy HTML partial) and encode as {id, name}.
type Item struct {
	ID        int64
	Name      string
	Price     float64
	CreatorID int64
	Unpriced  bool
}

type pricedItem struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	CreatorID int64   `json:"creatorId"`
}

type unpricedItem struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// MarshalJSON encodes the item in the shape of its source.
func (i Item) MarshalJSON() ([]byte, error) {
	if i.Unpriced {
		return json.Marshal(unpricedItem{ID: i.ID, Name: i.Name})
	}
	return json.Marshal(pricedItem{ID: i.ID, Name: i.Name, Price: i.Price, CreatorID: i.CreatorID})
}

// UnmarshalJSON decodes either shape. An item without price and creatorId
// is unpriced.
func (i *Item) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID        int64    `json:"id"`
		Name      string   `json:"name"`
		Price     *float64 `json:"price"`
		CreatorID *int64   `json:"creatorId"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*i = Item{ID: wire.ID, Name: wire.Name}
	if wire.Price == nil && wire.CreatorID == nil {
		i.Unpriced = true
		return nil
	}
	if wire.Price != nil {
		i.Price = *wire.Price
	}
	if wire.CreatorID != nil {
		i.CreatorID = *wire.CreatorID
	}
	return nil
}

// Collection is a user-owned game used as a fan-out key.
// ID is the universe id; RootPlaceID is the start place, which is what the
// legacy HTML source is keyed by. RootPlaceID is 0 when unknown.
type Collection struct {
	ID          int64 `json:"id"`
	RootPlaceID int64 `json:"rootPlaceId,omitempty"`
}

// RawPass is a game pass record as decoded from an upstream page, before
// defaults are applied. Nil fields were absent from the payload.
type RawPass struct {
	ID        int64
	Name      *string
	Price     *float64
	CreatorID *int64
	ForSale   *bool

	// Unpriced marks records from sources that never list a price. They are
	// retained on the forSale rule alone.
	Unpriced bool
}

// Normalize applies the documented defaults to a raw record and reports
// whether the resulting item is retained.
//
// Defaults: name "GamePass", price 0, creator 0. An item is retained when
// price > 0 and forSale is not explicitly false. Records without a positive
// id are never retained.
func Normalize(raw RawPass) (Item, bool) {
	item := Item{
		ID:       raw.ID,
		Name:     DefaultName,
		Unpriced: raw.Unpriced,
	}
	if raw.Name != nil && *raw.Name != "" {
		item.Name = *raw.Name
	}
	if raw.Price != nil {
		item.Price = *raw.Price
	}
	if raw.CreatorID != nil {
		item.CreatorID = *raw.CreatorID
	}

	if item.ID <= 0 {
		return item, false
	}
	if raw.ForSale != nil && !*raw.ForSale {
		return item, false
	}
	if raw.Unpriced {
		return item, true
	}
	return item, item.Price > 0
}

// SortByPrice orders items ascending by price. Equal prices keep their
// relative order.
func SortByPrice(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Price < items[j].Price
	})
}

// Dedup appends to dst every item of src whose id is not yet in seen,
// recording the id. The first occurrence wins.
func Dedup(dst []Item, seen map[int64]struct{}, src []Item) []Item {
	for _, item := range src {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		dst = append(dst, item)
	}
	return dst
}
