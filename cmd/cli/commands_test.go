package main

import (
	"flag"
	"io"
	"reflect"
	"testing"

	"github.com/himanishpuri/soundz/pkg/models"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		in        []string
		wantPath  string
		wantTitle string
	}{
		{[]string{"song.mp3", "--title", "X"}, "song.mp3", "X"},
		{[]string{"--title", "X", "song.mp3"}, "song.mp3", "X"},
		{[]string{"--title=X", "song.mp3"}, "song.mp3", "X"},
		{[]string{"--title", "X"}, "", "X"},
		{nil, "", ""},
	}
	for _, tt := range tests {
		fs := flag.NewFlagSet("add", flag.ContinueOnError)
		title := fs.String("title", "", "")
		fs.Int("year", 0, "")

		positional, err := parseArgs(fs, tt.in)
		if err != nil {
			t.Fatalf("parseArgs(%v): %v", tt.in, err)
		}
		if got := firstArg(positional); got != tt.wantPath {
			t.Errorf("parseArgs(%v) path = %q, want %q", tt.in, got, tt.wantPath)
		}
		if *title != tt.wantTitle {
			t.Errorf("parseArgs(%v) title = %q, want %q", tt.in, *title, tt.wantTitle)
		}
	}
}

func TestParseArgsKeepsEveryPositional(t *testing.T) {
	fs := flag.NewFlagSet("plot", flag.ContinueOnError)
	out := fs.String("out", "", "")

	positional, err := parseArgs(fs, []string{"a.wav", "--out", "a.png", "b.wav"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(positional, []string{"a.wav", "b.wav"}) {
		t.Errorf("positional = %v", positional)
	}
	if *out != "a.png" {
		t.Errorf("out = %q", *out)
	}
}

func TestParseArgsRejectsMissingValue(t *testing.T) {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Int("year", 0, "")

	if _, err := parseArgs(fs, []string{"song.mp3", "--year"}); err == nil {
		t.Error("expected an error for a flag without a value")
	}
}

func TestSearchSongs(t *testing.T) {
	songs := []models.Song{
		{ID: "1", Artist: "Daft Punk", Title: "Around the World"},
		{ID: "2", Artist: "Darude", Title: "Sandstorm"},
		{ID: "3", Artist: "Queen", Title: "Bohemian Rhapsody"},
	}

	got := searchSongs(songs, "sandstrom")
	if len(got) == 0 || got[0].ID != "2" {
		t.Fatalf("expected Sandstorm first for a misspelt query, got %v", got)
	}
	for _, s := range got {
		if s.ID == "3" {
			t.Errorf("unrelated song matched: %v", s)
		}
	}

	if got := searchSongs(songs, "QUEEN"); len(got) != 1 || got[0].ID != "3" {
		t.Errorf("expected exact artist match, got %v", got)
	}

	if got := searchSongs(songs, "zzzzzz"); len(got) != 0 {
		t.Errorf("expected no results, got %v", got)
	}
}
