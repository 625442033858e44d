package profile

import (
	"testing"
)

func TestMatchTopics_ExactAndPartial(t *testing.T) {
	journal := []string{
		"Квадратні рівняння",
		"Квадратні рівняння. Теорема Вієта",
		"Лінійні функції",
		"Козацька доба",
	}

	matched := MatchTopics("Квадратні рівняння", journal, 0.45)
	if len(matched) == 0 {
		t.Fatal("MatchTopics() returned nothing for an exact topic name")
	}
	if matched[0] != "Квадратні рівняння" {
		t.Errorf("best match = %q, want exact topic first", matched[0])
	}
	for _, m := range matched {
		if m == "Козацька доба" {
			t.Error("unrelated topic matched above threshold")
		}
	}
}

func TestMatchTopics_NoMatches(t *testing.T) {
	journal := []string{"Козацька доба", "Визвольна війна"}

	matched := MatchTopics("Квадратні рівняння", journal, 0.45)
	if len(matched) != 0 {
		t.Errorf("MatchTopics() = %v, want empty for unrelated topics", matched)
	}
}

func TestMatchTopics_EmptyJournal(t *testing.T) {
	if matched := MatchTopics("Будь-що", nil, 0.45); matched != nil {
		t.Errorf("MatchTopics() = %v, want nil for empty journal", matched)
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("Квадратні рівняння: x2 + 5x = 0!")
	want := []string{"квадратні", "рівняння", "x2", "5x", "0"}
	if len(got) != len(want) {
		t.Fatalf("tokenize() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
