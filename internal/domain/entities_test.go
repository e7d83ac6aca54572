package domain

import (
	"testing"
	"time"
)

func TestParseDirection(t *testing.T) {
	cases := map[string]Direction{
		"up":     DirectionUp,
		" UP ":   DirectionUp,
		"Down":   DirectionDown,
		"":       "",
		"upvote": "",
	}
	for raw, want := range cases {
		got, ok := ParseDirection(raw)
		if ok != (want != "") {
			t.Fatalf("%q: неожиданный признак разбора %v", raw, ok)
		}
		if got != want {
			t.Fatalf("%q: ожидали %q, получили %q", raw, want, got)
		}
	}
}

func TestDirectionOppositeAndKind(t *testing.T) {
	if DirectionUp.Opposite() != DirectionDown || DirectionDown.Opposite() != DirectionUp {
		t.Fatalf("противоположные направления перепутаны")
	}
	if DirectionUp.Kind() != KindUpVote || DirectionDown.Kind() != KindDownVote {
		t.Fatalf("неверные виды голосов")
	}
	if (Vote{Direction: DirectionDown}).Kind() != KindDownVote {
		t.Fatalf("вид голоса должен следовать направлению")
	}
}

func TestVotableOwnership(t *testing.T) {
	var p Votable = Post{Key: "p1"}
	var c Votable = Comment{Key: "c1", PostKey: "p1"}
	if p.OwningPostKey() != "p1" || c.OwningPostKey() != "p1" {
		t.Fatalf("сущность должна указывать на свой пост")
	}
	if c.VotableKey() != "c1" {
		t.Fatalf("ожидали ключ комментария")
	}
}

func TestTimestampTruncatesToMicroseconds(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	in := time.Date(2024, 5, 1, 15, 0, 0, 123456789, loc)
	got := Timestamp(in)
	if got.Location() != time.UTC {
		t.Fatalf("ожидали UTC, получили %v", got.Location())
	}
	if got.Nanosecond() != 123456000 || got.Hour() != 12 {
		t.Fatalf("неожиданное время %v", got)
	}
}
