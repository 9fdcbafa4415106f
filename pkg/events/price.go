package events

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Price is an optional amount in AED. The zero value means "not provided".
type Price struct {
	Value float64
	Valid bool
}

// NewPrice returns a set price.
func NewPrice(v float64) Price { return Price{Value: v, Valid: true} }

var nonNumeric = regexp.MustCompile(`[^0-9.]`)

func (p *Price) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*p = Price{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = ParsePrice(s)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = NewPrice(v)
	return nil
}

func (p Price) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}

func (p Price) MarshalYAML() (any, error) {
	if !p.Valid {
		return nil, nil
	}
	return p.Value, nil
}

// ParsePrice reads amounts such as "AED 1,250,000" by dropping every
// non-numeric character. Unparseable input yields an unset price.
func ParsePrice(s string) Price {
	cleaned := nonNumeric.ReplaceAllString(s, "")
	if cleaned == "" {
		return Price{}
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return Price{}
	}
	return NewPrice(v)
}

var printer = message.NewPrinter(language.English)

// Grouped formats the amount with thousands separators and at most two
// decimals, e.g. "1,250,000". Unset prices render as "N/A".
func (p Price) Grouped() string {
	if !p.Valid {
		return "N/A"
	}
	return printer.Sprint(number.Decimal(p.Value, number.MaxFractionDigits(2)))
}

// Rounded formats the amount rounded to whole dirhams with separators.
func (p Price) Rounded() string {
	if !p.Valid {
		return "N/A"
	}
	return printer.Sprint(number.Decimal(p.Value, number.MaxFractionDigits(0)))
}

// FormatAED renders "AED 1,250,000" or "AED N/A".
func (p Price) FormatAED() string {
	return "AED " + p.Rounded()
}
