package gamepass

import (
	"encoding/json"
	"testing"
)

func strPtr(s string) *string    { return &s }
func floatPtr(f float64) *float64 { return &f }
func intPtr(i int64) *int64       { return &i }
func boolPtr(b bool) *bool        { return &b }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      RawPass
		want     Item
		retained bool
	}{
		{
			name: "complete record",
			raw: RawPass{
				ID:        7,
				Name:      strPtr("VIP"),
				Price:     floatPtr(100),
				CreatorID: intPtr(55),
				ForSale:   boolPtr(true),
			},
			want:     Item{ID: 7, Name: "VIP", Price: 100, CreatorID: 55},
			retained: true,
		},
		{
			name:     "missing fields use defaults",
			raw:      RawPass{ID: 8, Price: floatPtr(5)},
			want:     Item{ID: 8, Name: DefaultName, Price: 5},
			retained: true,
		},
		{
			name:     "empty name uses default",
			raw:      RawPass{ID: 9, Name: strPtr(""), Price: floatPtr(5)},
			want:     Item{ID: 9, Name: DefaultName, Price: 5},
			retained: true,
		},
		{
			name:     "missing price is filtered",
			raw:      RawPass{ID: 10, Name: strPtr("Free")},
			want:     Item{ID: 10, Name: "Free"},
			retained: false,
		},
		{
			name:     "zero price is filtered",
			raw:      RawPass{ID: 11, Price: floatPtr(0)},
			want:     Item{ID: 11, Name: DefaultName},
			retained: false,
		},
		{
			name:     "negative price is filtered",
			raw:      RawPass{ID: 12, Price: floatPtr(-3)},
			want:     Item{ID: 12, Name: DefaultName, Price: -3},
			retained: false,
		},
		{
			name:     "not for sale is filtered",
			raw:      RawPass{ID: 13, Price: floatPtr(50), ForSale: boolPtr(false)},
			want:     Item{ID: 13, Name: DefaultName, Price: 50},
			retained: false,
		},
		{
			name:     "unpriced record kept",
			raw:      RawPass{ID: 14, Name: strPtr("Scraped"), Unpriced: true},
			want:     Item{ID: 14, Name: "Scraped", Unpriced: true},
			retained: true,
		},
		{
			name:     "unpriced record not for sale",
			raw:      RawPass{ID: 15, Unpriced: true, ForSale: boolPtr(false)},
			want:     Item{ID: 15, Name: DefaultName, Unpriced: true},
			retained: false,
		},
		{
			name:     "zero id is dropped",
			raw:      RawPass{ID: 0, Price: floatPtr(10)},
			want:     Item{ID: 0, Name: DefaultName, Price: 10},
			retained: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, retained := Normalize(tt.raw)
			if got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
			if retained != tt.retained {
				t.Errorf("Normalize() retained = %v, want %v", retained, tt.retained)
			}
		})
	}
}

func TestSortByPrice(t *testing.T) {
	items := []Item{
		{ID: 1, Price: 50},
		{ID: 2, Price: 10},
		{ID: 3, Price: 30},
		{ID: 4, Price: 10},
	}

	SortByPrice(items)

	wantIDs := []int64{2, 4, 3, 1}
	for i, id := range wantIDs {
		if items[i].ID != id {
			t.Errorf("items[%d].ID = %d, want %d", i, items[i].ID, id)
		}
	}
}

func TestDedup(t *testing.T) {
	seen := make(map[int64]struct{})

	var out []Item
	out = Dedup(out, seen, []Item{{ID: 42, Name: "first"}, {ID: 1}})
	out = Dedup(out, seen, []Item{{ID: 42, Name: "second"}, {ID: 2}})

	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
	if out[0].Name != "first" {
		t.Errorf("duplicate kept %q, want first-seen copy", out[0].Name)
	}
	if out[2].ID != 2 {
		t.Errorf("out[2].ID = %d, want 2", out[2].ID)
	}
}

func TestItem_JSON(t *testing.T) {
	tests := []struct {
		name string
		item Item
		want string
	}{
		{
			name: "priced",
			item: Item{ID: 1, Name: "VIP", Price: 100, CreatorID: 77},
			want: `{"id":1,"name":"VIP","price":100,"creatorId":77}`,
		},
		{
			name: "missing creator encodes zero",
			item: Item{ID: 9, Name: "X", Price: 10},
			want: `{"id":9,"name":"X","price":10,"creatorId":0}`,
		},
		{
			name: "unpriced",
			item: Item{ID: 14, Name: "Scraped", Unpriced: true},
			want: `{"id":14,"name":"Scraped"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.item)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal() = %s, want %s", data, tt.want)
			}

			var back Item
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if back != tt.item {
				t.Errorf("Unmarshal() = %+v, want %+v", back, tt.item)
			}
		})
	}
}
