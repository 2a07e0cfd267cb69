package scanner

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"buckify/internal/core"

	"github.com/shopspring/decimal"
)

const maxDescription = 200

// ErrUnreadableResponse means the model answer was not a JSON array of rows.
var ErrUnreadableResponse = errors.New("unreadable model response")

type rawRow struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      json.RawMessage `json:"amount"`
}

// ParseRows decodes the model's JSON answer. Rows with a bad date, a blank
// description or a zero or unparsable amount are dropped; negative amounts
// are taken as spend. Indexes are assigned to the kept rows in order.
func ParseRows(text string) ([]core.ImportRow, error) {
	text = stripFence(text)
	var raw []rawRow
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableResponse, err)
	}

	rows := make([]core.ImportRow, 0, len(raw))
	for _, r := range raw {
		date, err := core.ParseDate(r.Date)
		if err != nil {
			continue
		}
		desc := truncate(strings.Join(strings.Fields(r.Description), " "), maxDescription)
		if desc == "" {
			continue
		}
		amount, ok := parseAmount(r.Amount)
		if !ok {
			continue
		}
		rows = append(rows, core.ImportRow{
			Index:       len(rows),
			Date:        date,
			Description: desc,
			Amount:      amount,
		})
	}
	return rows, nil
}

// parseAmount accepts a JSON number or a string holding one, with either
// decimal separator, digit grouping and an optional currency symbol.
func parseAmount(raw json.RawMessage) (core.Money, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return core.Money{}, false
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return core.Money{}, false
		}
		s = normalizeAmount(s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return core.Money{}, false
	}
	m, err := core.MoneyFromDecimal(d.Abs())
	if err != nil {
		return core.Money{}, false
	}
	return m, true
}

// normalizeAmount rewrites a printed amount into decimal's dot notation.
// When both '.' and ',' appear, the rightmost one is the decimal point and
// the other is grouping. A separator repeated on its own ("1.234.567") is
// grouping. A single lone separator is the decimal point.
func normalizeAmount(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '€', '$', '£', ' ', '\u00a0', '\u202f', '\'':
			return -1
		}
		return r
	}, s)

	lastDot, lastComma := strings.LastIndexByte(s, '.'), strings.LastIndexByte(s, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0:
		group, point := ",", "."
		if lastComma > lastDot {
			group, point = ".", ","
		}
		s = strings.ReplaceAll(s, group, "")
		return strings.Replace(s, point, ".", 1)
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

// stripFence removes a ```json ... ``` wrapper some models add despite the
// requested MIME type.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
