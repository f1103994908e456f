package textfix

import (
	"strings"
	"testing"
)

func testDictionary() *Dictionary {
	d := NewDictionary()
	d.Add("Rechnung", 5000)
	d.Add("Betrag", 3000)
	d.Add("und", 90000)
	d.Add("GmbH", 4000)
	d.Add("Sehr", 2000)
	d.Add("geehrte", 1500)
	return d
}

func TestCorrectEmptyString(t *testing.T) {
	c := NewCorrector(DefaultConfig(), testDictionary(), nil)
	if got := c.Correct(""); got != "" {
		t.Errorf("Correct(\"\") = %q, want \"\"", got)
	}
}

func TestCorrectNeverFails(t *testing.T) {
	c := NewCorrector(DefaultConfig(), nil, nil)
	inputs := []string{
		"",
		"   \t\n  ",
		"§§§%%%&&&",
		strings.Repeat("ß", 500),
		"\x00\x01\x02",
	}
	for _, in := range inputs {
		// Any panic fails the test.
		_ = c.Correct(in)
	}
}

func TestCleanStage(t *testing.T) {
	cfg := Config{Clean: true}
	c := NewCorrector(cfg, nil, nil)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips disallowed characters",
			in:   "Rechnung §§ Nr. 42 €",
			want: "Rechnung Nr. 42",
		},
		{
			name: "collapses whitespace",
			in:   "Sehr   geehrte\t\tDamen",
			want: "Sehr geehrte Damen",
		},
		{
			name: "spaces date fragments",
			in:   "am 05.12.2024 erhalten",
			want: "am 05. 12. 2024 erhalten",
		},
		{
			name: "keeps umlauts and eszett",
			in:   "Grüße aus München",
			want: "Grüße aus München",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Correct(tt.in); got != tt.want {
				t.Errorf("Correct(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAutocorrectStage(t *testing.T) {
	cfg := Config{Autocorrect: true}
	c := NewCorrector(cfg, testDictionary(), nil)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "fixes close misspelling",
			in:   "Rechnnng",
			want: "Rechnung",
		},
		{
			name: "keeps unknown proper noun",
			in:   "Dropscan",
			want: "Dropscan",
		},
		{
			name: "keeps numbers",
			in:   "24111351",
			want: "24111351",
		},
		{
			name: "mixed sentence",
			in:   "Betrsg und Rechnumg",
			want: "Betrag und Rechnung",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Correct(tt.in); got != tt.want {
				t.Errorf("Correct(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAutocorrectSkippedWithoutDictionary(t *testing.T) {
	cfg := Config{Autocorrect: true}
	c := NewCorrector(cfg, nil, nil)
	if got := c.Correct("Rechnnng"); got != "Rechnnng" {
		t.Errorf("without dictionary, token should pass through, got %q", got)
	}
}

func TestNormalizeSpacing(t *testing.T) {
	got := normalizeSpacing("Sehr    geehrte\n\nDamen und  Herren")
	want := "Sehr geehrte Damen und Herren"
	if got != want {
		t.Errorf("normalizeSpacing = %q, want %q", got, want)
	}
}

func TestRestoreParagraphs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "splits at sentence boundary before capital",
			in:   "Der erste Satz endet hier. Der zweite beginnt neu.",
			want: "Der erste Satz endet hier.\n\nDer zweite beginnt neu.",
		},
		{
			name: "no split before lowercase",
			in:   "Rechnung Nr. vier liegt bei.",
			want: "Rechnung Nr. vier liegt bei.",
		},
		{
			name: "split on exclamation",
			in:   "Achtung! Bitte zahlen.",
			want: "Achtung!\n\nBitte zahlen.",
		},
		{
			name: "umlaut capital starts paragraph",
			in:   "Das war alles. Über den Rest sprechen wir.",
			want: "Das war alles.\n\nÜber den Rest sprechen wir.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := restoreParagraphs(tt.in); got != tt.want {
				t.Errorf("restoreParagraphs(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatEntitiesPreservesPhoneAndEmail(t *testing.T) {
	in := "+49 (0)157 7444 5488 epfaff@the-ip-fox.com"
	if got := formatEntities(in); got != in {
		t.Errorf("formatEntities changed protected tokens: %q", got)
	}
}

func TestTrimNoise(t *testing.T) {
	cfg := Config{NoiseTrim: true, ArtifactPatterns: DefaultArtifacts}
	c := NewCorrector(cfg, nil, nil)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips leading junk",
			in:   "---** Rechnung folgt",
			want: "Rechnung folgt",
		},
		{
			name: "keeps leading umlaut word",
			in:   "Änderung der Adresse",
			want: "Änderung der Adresse",
		},
		{
			name: "removes known artifact",
			in:   "Pr f re . f i N u N Rechnung",
			want: "Rechnung",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Correct(tt.in); got != tt.want {
				t.Errorf("Correct(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStageRecoversFromPanic(t *testing.T) {
	c := NewCorrector(Config{}, nil, nil)
	got := c.stage("boom", "input", func(string) string {
		panic("stage exploded")
	})
	if got != "input" {
		t.Errorf("panicking stage should pass input through, got %q", got)
	}
}
