package events

import (
	"bytes"
	"encoding/json"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Listing is one property in a result set. The backend is loose with types:
// ids and bed counts arrive as numbers or strings, prices as numbers or
// formatted strings.
type Listing struct {
	ID             FlexString `json:"id" yaml:"id"`
	Title          string     `json:"title,omitempty" yaml:"title,omitempty"`
	Description    string     `json:"description,omitempty" yaml:"description,omitempty"`
	Location       string     `json:"location,omitempty" yaml:"location,omitempty"`
	Price          Price      `json:"price" yaml:"price"`
	Beds           FlexString `json:"beds,omitempty" yaml:"beds,omitempty"`
	Baths          FlexString `json:"baths,omitempty" yaml:"baths,omitempty"`
	Area           string     `json:"area,omitempty" yaml:"area,omitempty"`
	City           string     `json:"city,omitempty" yaml:"city,omitempty"`
	PropertyType   string     `json:"type,omitempty" yaml:"type,omitempty"`
	Thumbnail      string     `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty"`
	Source         string     `json:"source,omitempty" yaml:"source,omitempty"`
	SourceURL      string     `json:"sourceUrl,omitempty" yaml:"source_url,omitempty"`
	PriceInsight   string     `json:"priceInsight,omitempty" yaml:"price_insight,omitempty"`
	IsExactMatch   *bool      `json:"isExactMatch,omitempty" yaml:"is_exact_match,omitempty"`
	FallbackReason string     `json:"fallbackReason,omitempty" yaml:"fallback_reason,omitempty"`
	KeyFeatures    Features   `json:"key_features,omitempty" yaml:"key_features,omitempty"`
}

// Clone returns a deep copy.
func (l Listing) Clone() Listing {
	out := l
	out.KeyFeatures = slices.Clone(l.KeyFeatures)
	if l.IsExactMatch != nil {
		v := *l.IsExactMatch
		out.IsExactMatch = &v
	}
	return out
}

// CloneListings deep-copies a result set, keeping nil as nil.
func CloneListings(in []Listing) []Listing {
	if in == nil {
		return nil
	}
	out := make([]Listing, len(in))
	for i, l := range in {
		out[i] = l.Clone()
	}
	return out
}

// BedsLabel renders the bedroom count the way listings show it: "Studio",
// "3BR", or "" when unknown.
func (l Listing) BedsLabel() string {
	b := strings.TrimSpace(string(l.Beds))
	switch {
	case b == "", strings.EqualFold(b, "N/A"):
		return ""
	case b == "0", strings.EqualFold(b, "studio"):
		return "Studio"
	}
	if _, err := strconv.ParseFloat(b, 64); err == nil {
		return b + "BR"
	}
	return b
}

// FlexString accepts a JSON string, number or bool and keeps its text form.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	switch b[0] {
	case '{', '[':
		return errors.Errorf("flex string: unsupported json value %s", string(b))
	}
	*f = FlexString(b)
	return nil
}

func (f FlexString) String() string { return string(f) }

// Features is a list of short feature phrases. The backend sends either a
// JSON list or one delimited string.
type Features []string

var featureSeparators = regexp.MustCompile(`[,;|/]+`)

func (f *Features) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = nil
		return nil
	}
	if b[0] == '[' {
		var list []string
		if err := json.Unmarshal(b, &list); err != nil {
			return errors.Wrap(err, "decode key features")
		}
		*f = list
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "decode key features")
	}
	*f = SplitFeatures(s)
	return nil
}

// SplitFeatures splits a delimited feature string into trimmed phrases.
func SplitFeatures(s string) Features {
	var out Features
	for _, part := range featureSeparators.Split(s, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
