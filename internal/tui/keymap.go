package tui

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"charm.land/bubbles/v2/key"
)

// keyMap represents key map data used by this package.
type keyMap struct {
	quit       key.Binding
	reload     key.Binding
	toggleHelp key.Binding
	moveLeft   key.Binding
	moveRight  key.Binding
	moveUp     key.Binding
	moveDown   key.Binding
	pickUp     key.Binding
	drop       key.Binding
	cancel     key.Binding
	detail     key.Binding
	copyID     key.Binding
	deleteCase key.Binding
	processes  key.Binding
}

// newKeyMap constructs key map.
func newKeyMap() keyMap {
	return keyMap{
		quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		toggleHelp: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		moveLeft:   key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "stage left")),
		moveRight:  key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "stage right")),
		moveUp:     key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "case up")),
		moveDown:   key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "case down")),
		pickUp:     key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "pick up")),
		drop:       key.NewBinding(key.WithKeys("enter", " ", "space"), key.WithHelp("enter", "drop")),
		cancel:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		detail:     key.NewBinding(key.WithKeys("i", "enter"), key.WithHelp("i/enter", "case detail")),
		copyID:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy id")),
		deleteCase: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "delete case")),
		processes:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "next process")),
	}
}

// applyConfig applies configured overrides. Enter always opens detail and drops;
// the drop binding also follows the pick-up key.
func (k *keyMap) applyConfig(cfg KeyConfig) {
	configureBinding(&k.pickUp, cfg.PickUp, " ", "pick up")
	configureBinding(&k.detail, cfg.Detail, "i", "case detail")
	k.detail.SetKeys(append(k.detail.Keys(), "enter")...)
	configureBinding(&k.copyID, cfg.CopyID, "y", "copy id")
	configureBinding(&k.deleteCase, cfg.Delete, "x", "delete case")

	dropKeys := append([]string{"enter"}, k.pickUp.Keys()...)
	k.drop = key.NewBinding(key.WithKeys(dropKeys...), key.WithHelp("enter/"+k.pickUp.Help().Key, "drop"))
}

// configureBinding rebinds b to raw, falling back to fallback when raw is blank.
func configureBinding(b *key.Binding, raw, fallback, desc string) {
	keys, help := parseBindingKeys(raw, fallback)
	b.SetKeys(keys...)
	b.SetHelp(help, desc)
}

// parseBindingKeys turns a configured key into matcher keys and help text.
func parseBindingKeys(raw, fallback string) ([]string, string) {
	if raw == " " {
		raw = "space"
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if fallback == " " {
			return []string{" ", "space"}, "space"
		}
		return []string{fallback}, fallback
	}
	if strings.EqualFold(raw, "space") {
		return []string{" ", "space"}, "space"
	}
	if utf8.RuneCountInString(raw) == 1 {
		r, _ := utf8.DecodeRuneInString(raw)
		if unicode.IsUpper(r) {
			return []string{raw, "shift+" + strings.ToLower(raw)}, raw
		}
		return []string{raw}, raw
	}
	return []string{strings.ToLower(raw)}, raw
}

// ShortHelp handles short help.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.pickUp, k.detail, k.copyID, k.deleteCase, k.processes, k.toggleHelp, k.quit}
}

// FullHelp handles full help.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.moveLeft, k.moveRight, k.moveUp, k.moveDown},
		{k.pickUp, k.drop, k.cancel},
		{k.detail, k.copyID, k.deleteCase, k.processes, k.reload, k.toggleHelp, k.quit},
	}
}

// dragHelp lists the bindings active while a card is carried.
func (k keyMap) dragHelp() []key.Binding {
	return []key.Binding{k.moveLeft, k.moveRight, k.moveUp, k.moveDown, k.drop, k.cancel}
}
