package enrich

import (
	"reflect"
	"testing"
)

func TestHasAny_ShortKeywordsMatchWholeWords(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		keywords []string
		want     bool
	}{
		{"acronym inside word", "HERP DERP", []string{"ERP"}, false},
		{"acronym as word", "Implementatie ERP systeem", []string{"ERP"}, true},
		{"acronym before hyphen", "voldoen aan BIO-normen", []string{"BIO"}, true},
		{"acronym inside dutch word", "biologisch afbreekbaar", []string{"BIO"}, false},
		{"long keyword as substring", "Werkplekbeheer gemeente", []string{"werkplek"}, true},
		{"case insensitive", "MANAGED SERVICE provider", []string{"managed service"}, true},
		{"empty text", "", []string{"cloud"}, false},
		{"empty keyword ignored", "cloud", []string{""}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasAny(tc.text, tc.keywords); got != tc.want {
				t.Fatalf("HasAny(%q, %v) = %v, want %v", tc.text, tc.keywords, got, tc.want)
			}
		})
	}
}

func TestKeywordSet_MatchesInTableOrder(t *testing.T) {
	ks := newKeywordSet("cloud", "SaaS", "hosting", "ERP")

	got := ks.Matches(combinedText("Hosting en SaaS", "cloud cloud herp"))
	want := []string{"cloud", "SaaS", "hosting"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if ks.Any("kantoormeubelen") {
		t.Fatal("expected no match for unrelated text")
	}
}

func TestMatcher_Any(t *testing.T) {
	m := NewMatcher("ict", "werkplek")
	if !m.Any("Levering ICT-middelen") {
		t.Fatal("expected whole-word ict to match")
	}
	if m.Any("Dictafoons") {
		t.Fatal("short keyword must not match inside a word")
	}
	if !m.Any("Werkplekbeheer gemeente") {
		t.Fatal("expected long keyword substring match")
	}
}
