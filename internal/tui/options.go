package tui

import (
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
)

// CardFieldConfig selects the secondary fields shown under each card title.
type CardFieldConfig struct {
	ShowValue   bool
	ShowDueDate bool
	ShowContact bool
}

// KeyConfig overrides configurable key bindings. Blank fields keep defaults.
type KeyConfig struct {
	PickUp string
	Detail string
	CopyID string
	Delete string
}

type Option func(*Model)

func DefaultCardFieldConfig() CardFieldConfig {
	return CardFieldConfig{
		ShowValue:   true,
		ShowDueDate: true,
	}
}

func WithCardFieldConfig(cfg CardFieldConfig) Option {
	return func(m *Model) {
		m.cardFields = cfg
	}
}

func WithKeyConfig(cfg KeyConfig) Option {
	return func(m *Model) {
		m.keys.applyConfig(cfg)
	}
}

// WithPageSize sets how many cases each sentinel fetch requests. 0 keeps the service default.
func WithPageSize(n int) Option {
	return func(m *Model) {
		if n >= 0 {
			m.pageSize = n
		}
	}
}

func WithShowWIPWarnings(show bool) Option {
	return func(m *Model) {
		m.showWIPWarnings = show
	}
}

// WithLogger routes board, drag and loader diagnostics to logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Model) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		if write != nil {
			m.copyText = write
		}
	}
}

func systemClipboard(text string) error {
	return clipboard.WriteAll(text)
}
