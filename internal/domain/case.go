package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Case is a tracked unit of work sitting in exactly one stage.
type Case struct {
	ID          string
	ProcessID   string
	StageID     string
	Position    int
	Title       string
	Description string
	Contact     string
	ValueCents  int64
	Currency    string
	DueAt       *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CaseInput holds the caller-provided fields for NewCase.
type CaseInput struct {
	ID          string
	ProcessID   string
	StageID     string
	Position    int
	Title       string
	Description string
	Contact     string
	ValueCents  int64
	Currency    string
	DueAt       *time.Time
}

// DefaultCurrency is applied when a case carries a value but no currency.
const DefaultCurrency = "USD"

// NewCase constructs a validated case.
func NewCase(in CaseInput, now time.Time) (Case, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProcessID = strings.TrimSpace(in.ProcessID)
	in.StageID = strings.TrimSpace(in.StageID)
	in.Title = strings.TrimSpace(in.Title)

	if in.ID == "" || in.ProcessID == "" {
		return Case{}, ErrInvalidID
	}
	if in.StageID == "" {
		return Case{}, ErrInvalidStageID
	}
	if in.Title == "" {
		return Case{}, ErrInvalidTitle
	}
	if in.Position < 0 {
		return Case{}, ErrInvalidPosition
	}
	if in.ValueCents < 0 {
		return Case{}, ErrInvalidValue
	}
	currency, err := normalizeCurrency(in.Currency, in.ValueCents)
	if err != nil {
		return Case{}, err
	}

	return Case{
		ID:          in.ID,
		ProcessID:   in.ProcessID,
		StageID:     in.StageID,
		Position:    in.Position,
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		Contact:     strings.TrimSpace(in.Contact),
		ValueCents:  in.ValueCents,
		Currency:    currency,
		DueAt:       normalizeDueAt(in.DueAt),
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// Move places the case at position within stageID.
func (c *Case) Move(stageID string, position int, now time.Time) error {
	stageID = strings.TrimSpace(stageID)
	if stageID == "" {
		return ErrInvalidStageID
	}
	if position < 0 {
		return ErrInvalidPosition
	}
	c.StageID = stageID
	c.Position = position
	c.UpdatedAt = now.UTC()
	return nil
}

// FormatValue renders the case value as "USD 1,250.00"; empty when no value is set.
func (c Case) FormatValue() string {
	if c.ValueCents == 0 {
		return ""
	}
	whole := c.ValueCents / 100
	cents := c.ValueCents % 100
	return fmt.Sprintf("%s %s.%02d", c.Currency, groupThousands(whole), cents)
}

func groupThousands(n int64) string {
	raw := fmt.Sprintf("%d", n)
	if len(raw) <= 3 {
		return raw
	}
	var b strings.Builder
	lead := len(raw) % 3
	if lead > 0 {
		b.WriteString(raw[:lead])
	}
	for i := lead; i < len(raw); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(raw[i : i+3])
	}
	return b.String()
}

func normalizeCurrency(currency string, value int64) (string, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		if value == 0 {
			return "", nil
		}
		return DefaultCurrency, nil
	}
	if len(currency) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range currency {
		if !unicode.IsLetter(r) {
			return "", ErrInvalidCurrency
		}
	}
	return currency, nil
}

func normalizeDueAt(dueAt *time.Time) *time.Time {
	if dueAt == nil {
		return nil
	}
	ts := dueAt.UTC().Truncate(time.Second)
	return &ts
}
