package engine

import (
	"testing"
	"time"

	"github.com/lyallcooper/reclaim/internal/types"
)

func at(day int) *time.Time {
	t := time.Date(2024, 6, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestParseKeepStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    KeepStrategy
		wantErr bool
	}{
		{"", KeepFirst, false},
		{"first", KeepFirst, false},
		{"oldest", KeepOldest, false},
		{"newest", KeepNewest, false},
		{"largest", "", true},
	}
	for _, tt := range tests {
		got, err := ParseKeepStrategy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseKeepStrategy(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestKeepStrategy_Choose(t *testing.T) {
	group := types.DuplicateGroup{Size: 10, Files: []types.ScannedFile{
		{Path: "/no-time"},
		{Path: "/mid", ModifiedAt: at(10)},
		{Path: "/old", ModifiedAt: at(2)},
		{Path: "/old-too", ModifiedAt: at(2)},
		{Path: "/new", ModifiedAt: at(20)},
	}}

	tests := []struct {
		k    KeepStrategy
		want string
	}{
		{KeepFirst, "/no-time"},
		{KeepOldest, "/old"},
		{KeepNewest, "/new"},
	}
	for _, tt := range tests {
		t.Run(string(tt.k), func(t *testing.T) {
			if got := tt.k.Choose(group).Path; got != tt.want {
				t.Errorf("Choose = %s, want %s", got, tt.want)
			}
		})
	}

	if got := KeepOldest.Choose(types.DuplicateGroup{}); got.Path != "" {
		t.Errorf("Choose(empty) = %+v, want zero file", got)
	}
}
