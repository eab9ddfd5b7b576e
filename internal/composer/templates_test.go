package composer

import (
	"strings"
	"testing"
)

func TestTemplates_Catalog(t *testing.T) {
	t.Parallel()

	want := []string{"monitor_lizard.jpeg", "overlooking.jpeg", "crab-drone.jpeg", "husbant.jpeg", "pov.png"}
	got := Templates()
	if len(got) != len(want) {
		t.Fatalf("len(Templates()) = %d, want %d", len(got), len(want))
	}
	for i, img := range want {
		if got[i].Image != img {
			t.Errorf("Templates()[%d].Image = %q, want %q", i, got[i].Image, img)
		}
	}

	got[0].Image = "mutated"
	if Templates()[0].Image != "monitor_lizard.jpeg" {
		t.Error("Templates() must return a copy")
	}
}

func TestTemplate_Fill(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		tpl        Template
		situation  string
		wantTop    string
		wantBottom string
	}{
		{
			name:       "bottom slot",
			tpl:        Templates()[0],
			situation:  "the stock market",
			wantTop:    "BORN TO MONITOR",
			wantBottom: "THE STOCK MARKET SITUATION",
		},
		{
			name:       "placeholder mid sentence",
			tpl:        Templates()[4],
			situation:  "the Raccoons",
			wantTop:    "I AM THE SITUATION",
			wantBottom: "BUT THE RACCOONS MUST BE MONITORED",
		},
		{
			name:       "only first placeholder replaced",
			tpl:        Template{Image: "x.png", Top: "<situation> and <situation>", Bottom: "none"},
			situation:  "the cats",
			wantTop:    "THE CATS and <situation>",
			wantBottom: "none",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			top, bottom := tt.tpl.Fill(tt.situation)
			if top != tt.wantTop || bottom != tt.wantBottom {
				t.Errorf("Fill(%q) = (%q, %q), want (%q, %q)", tt.situation, top, bottom, tt.wantTop, tt.wantBottom)
			}
		})
	}
}

func TestParseTemplates_Rejects(t *testing.T) {
	t.Parallel()

	one := "- image: a.png\n  top: TOP\n  bottom: <situation>\n"
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"not yaml", "[unclosed", "failed to parse"},
		{"wrong count", one, "expected 5"},
		{"missing image", strings.Repeat(one, 4) + "- image: \"\"\n  top: T\n  bottom: <situation>\n", "has no image"},
		{"missing placeholder", strings.Repeat(one, 4) + "- image: b.png\n  top: T\n  bottom: B\n", "has no <situation> slot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseTemplates([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("parseTemplates() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
