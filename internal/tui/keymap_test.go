package tui

import (
	"slices"
	"testing"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
)

func TestParseBindingKeys(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		fallback string
		keys     []string
		help     string
	}{
		{name: "pick up spelled space", raw: "space", fallback: " ", keys: []string{" ", "space"}, help: "space"},
		{name: "pick up upper SPACE", raw: "SPACE", fallback: "m", keys: []string{" ", "space"}, help: "space"},
		{name: "pick up literal blank", raw: " ", fallback: "m", keys: []string{" ", "space"}, help: "space"},
		{name: "pick up unset keeps space", raw: "", fallback: " ", keys: []string{" ", "space"}, help: "space"},
		{name: "copy id shifted", raw: "Y", fallback: "y", keys: []string{"Y", "shift+y"}, help: "Y"},
		{name: "delete chord lowercased", raw: "Ctrl+D", fallback: "x", keys: []string{"ctrl+d"}, help: "Ctrl+D"},
		{name: "detail unset", raw: "  ", fallback: "i", keys: []string{"i"}, help: "i"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			keys, help := parseBindingKeys(tc.raw, tc.fallback)
			if !slices.Equal(keys, tc.keys) {
				t.Fatalf("parseBindingKeys(%q) keys = %#v, want %#v", tc.raw, keys, tc.keys)
			}
			if help != tc.help {
				t.Fatalf("parseBindingKeys(%q) help = %q, want %q", tc.raw, help, tc.help)
			}
		})
	}
}

func TestConfigureBindingRebindsCopyID(t *testing.T) {
	k := newKeyMap()
	configureBinding(&k.copyID, "c", "y", "copy id")
	if got := k.copyID.Keys(); !slices.Equal(got, []string{"c"}) {
		t.Fatalf("unexpected copy id keys %#v", got)
	}
	if k.copyID.Help().Key != "c" || k.copyID.Help().Desc != "copy id" {
		t.Fatalf("unexpected copy id help %#v", k.copyID.Help())
	}
}

// TestKeyMapSpacePickUpOverride keeps space working for both carry and drop when configured by name.
func TestKeyMapSpacePickUpOverride(t *testing.T) {
	k := newKeyMap()
	k.applyConfig(KeyConfig{PickUp: "space", Detail: "i", CopyID: "y", Delete: "x"})
	if got := k.pickUp.Keys(); !slices.Equal(got, []string{" ", "space"}) {
		t.Fatalf("unexpected pick up keys %#v", got)
	}
	if got := k.drop.Keys(); !slices.Equal(got, []string{"enter", " ", "space"}) {
		t.Fatalf("unexpected drop keys %#v", got)
	}
	if k.drop.Help().Key != "enter/space" {
		t.Fatalf("unexpected drop help %#v", k.drop.Help())
	}
	if !key.Matches(tea.KeyPressMsg{Code: tea.KeySpace, Text: " "}, k.pickUp) {
		t.Fatal("expected space key press to match pick up")
	}
}

// TestKeyMapApplyConfig verifies configured overrides and the drop binding that follows pick-up.
func TestKeyMapApplyConfig(t *testing.T) {
	k := newKeyMap()
	k.applyConfig(KeyConfig{
		PickUp: "m",
		Detail: "o",
		CopyID: "Y",
		Delete: "",
	})

	assertKeys := func(name string, binding key.Binding, expected ...string) {
		t.Helper()
		got := binding.Keys()
		if len(got) != len(expected) {
			t.Fatalf("%s key count mismatch got=%#v expected=%#v", name, got, expected)
		}
		for i := range expected {
			if got[i] != expected[i] {
				t.Fatalf("%s key mismatch got=%#v expected=%#v", name, got, expected)
			}
		}
	}

	assertKeys("pick up", k.pickUp, "m")
	assertKeys("drop", k.drop, "enter", "m")
	assertKeys("detail", k.detail, "o", "enter")
	assertKeys("copy id", k.copyID, "Y", "shift+y")
	assertKeys("delete", k.deleteCase, "x")
}

// TestKeyMapDefaultPickUpIsSpace verifies the default carry key accepts both space spellings.
func TestKeyMapDefaultPickUpIsSpace(t *testing.T) {
	k := newKeyMap()
	k.applyConfig(KeyConfig{PickUp: " "})
	got := k.pickUp.Keys()
	if len(got) != 2 || got[0] != " " || got[1] != "space" {
		t.Fatalf("unexpected pick up keys %#v", got)
	}
	if k.pickUp.Help().Key != "space" {
		t.Fatalf("unexpected pick up help %#v", k.pickUp.Help())
	}
}
