// Package usage accumulates per-turn token and billing counters.
package usage

import "github.com/bitop-dev/cohere/internal/chat"

// Merge returns the field-wise sum of total and turn. A field missing from one
// operand counts as zero; a field missing from both stays missing.
func Merge(total, turn chat.Usage) chat.Usage {
	return chat.Usage{
		InputTokens:  add(total.InputTokens, turn.InputTokens),
		OutputTokens: add(total.OutputTokens, turn.OutputTokens),
		BilledUnits:  mergeBilled(total.BilledUnits, turn.BilledUnits),
	}
}

func mergeBilled(a, b *chat.BilledUnits) *chat.BilledUnits {
	if a == nil && b == nil {
		return nil
	}
	var x, y chat.BilledUnits
	if a != nil {
		x = *a
	}
	if b != nil {
		y = *b
	}
	return &chat.BilledUnits{
		InputTokens:     add(x.InputTokens, y.InputTokens),
		OutputTokens:    add(x.OutputTokens, y.OutputTokens),
		SearchUnits:     add(x.SearchUnits, y.SearchUnits),
		Classifications: add(x.Classifications, y.Classifications),
	}
}

func add[T int | float64](a, b *T) *T {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		v := *b
		return &v
	case b == nil:
		v := *a
		return &v
	}
	v := *a + *b
	return &v
}

// Total returns input plus output tokens, or 0 when neither was reported.
func Total(u chat.Usage) int {
	var n int
	if u.InputTokens != nil {
		n += *u.InputTokens
	}
	if u.OutputTokens != nil {
		n += *u.OutputTokens
	}
	return n
}
