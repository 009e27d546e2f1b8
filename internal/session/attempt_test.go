package session

import (
	"errors"
	"slices"
	"testing"

	"github.com/conorfennell/openingdrill/internal/domain"
)

func TestAttemptWhite(t *testing.T) {
	item := &Item{LineID: "l", Side: domain.White, Moves: []string{"e4", "e5", "Nf3", "Nc6", "Bc4"}}
	a := newAttempt(item)

	if a.State() != InProgress || len(a.Played()) != 0 {
		t.Fatalf("Expected a fresh attempt, got %s with %v played", a.State(), a.Played())
	}

	testCases := []struct {
		san      string
		expected Move
	}{
		{"e4", Move{Correct: true, Reply: "e5"}},
		{"Nc3", Move{Correct: false}},
		{"Nf3", Move{Correct: true, Reply: "Nc6"}},
		{"Bc4", Move{Correct: true, Finished: true}},
	}
	for _, tc := range testCases {
		got, err := a.Play(tc.san)
		if err != nil {
			t.Fatalf("Play(%s) returned an unexpected error: %v", tc.san, err)
		}
		if got != tc.expected {
			t.Errorf("Play(%s): expected %+v, but got %+v", tc.san, tc.expected, got)
		}
	}

	if a.State() != FinishedDirty {
		t.Errorf("Expected %s, got %s", FinishedDirty, a.State())
	}
	if _, err := a.Play("d4"); !errors.Is(err, ErrAttemptFinished) {
		t.Errorf("Expected ErrAttemptFinished, got %v", err)
	}
}

func TestAttemptBlackAutoPlaysFirstMove(t *testing.T) {
	item := &Item{LineID: "l", Side: domain.Black, Moves: []string{"e4", "c6", "d4", "d5"}}
	a := newAttempt(item)

	if !slices.Equal(a.Played(), []string{"e4"}) {
		t.Fatalf("Expected White's first move to be played, got %v", a.Played())
	}
	if m, _ := a.Play("c6"); !m.Correct || m.Reply != "d4" {
		t.Errorf("Expected c6 to be accepted with reply d4, got %+v", m)
	}
	m, _ := a.Play("d5")
	if !m.Finished || a.State() != FinishedClean {
		t.Errorf("Expected a clean finish, got %+v in state %s", m, a.State())
	}
}

func TestAttemptEndsOnOpponentMove(t *testing.T) {
	item := &Item{LineID: "l", Side: domain.White, Moves: []string{"d4", "d5"}}
	a := newAttempt(item)

	m, err := a.Play("d4")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Finished || m.Reply != "d5" || !a.Clean() {
		t.Errorf("Expected the reply to end the line cleanly, got %+v", m)
	}
}

func TestAttemptShowSolution(t *testing.T) {
	item := &Item{LineID: "l", Side: domain.White, Moves: []string{"d4", "d5", "c4"}}
	a := newAttempt(item)
	a.Play("d4")

	rest, err := a.ShowSolution()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(rest, []string{"c4"}) {
		t.Errorf("Expected the remaining moves, got %v", rest)
	}
	if a.State() != FinishedDirty || a.Clean() {
		t.Errorf("Expected a dirty finish, got %s", a.State())
	}
	if _, err := a.ShowSolution(); !errors.Is(err, ErrAttemptFinished) {
		t.Errorf("Expected ErrAttemptFinished, got %v", err)
	}
}
