package domain

import "testing"

func TestCollectivismMeter(t *testing.T) {
	cases := []struct {
		score   int
		percent int
		color   string
		leaning string
	}{
		{0, 0, "#3b82f6", "blue"},
		{50, 50, "#a855f7", "purple"},
		{100, 100, "#dc2626", "red"},
		{87, 87, "", "red"},
		{140, 100, "#dc2626", "red"},
	}
	for _, tc := range cases {
		m := CollectivismMeter(tc.score)
		if m.Percent != tc.percent || m.Leaning != tc.leaning {
			t.Fatalf("score %d: unexpected meter %+v", tc.score, m)
		}
		if tc.color != "" && m.Color != tc.color {
			t.Fatalf("score %d: expected color %s, got %s", tc.score, tc.color, m.Color)
		}
	}
}

func TestStyleForFallback(t *testing.T) {
	if StyleFor(Tone("UNKNOWN")) != StyleFor(ToneSarcastic) {
		t.Fatalf("unknown tone should fall back to sarcastic style")
	}
	if StyleFor(ToneAggressive).Icon != "swords" {
		t.Fatalf("unexpected aggressive icon")
	}
}

func TestNewFeedItem(t *testing.T) {
	item := NewFeedItem(StoredResponse{ID: "r1", Tone: ToneAggressive, Persona: PersonaAncap, CollectivismScore: 87})
	if item.ToneLabel != "Aggressive Debunker" || item.PersonaLabel != "Anarcocapitalista (Milei Style)" {
		t.Fatalf("unexpected labels %+v", item)
	}
	if item.Style != StyleFor(ToneAggressive) || item.Meter.Leaning != "red" {
		t.Fatalf("unexpected styling %+v", item)
	}
}
