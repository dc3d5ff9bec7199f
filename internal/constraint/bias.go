package constraint

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// BiasList is the full vocabulary handed to the decoder as a soft scoring hint
type BiasList []string

// BuildBiasList returns the deduplicated terms unmodified. No classification or
// truncation is applied.
func BuildBiasList(terms []string) BiasList {
	list := make(BiasList, len(terms))
	copy(list, terms)
	return list
}

// MarshalJSON encodes the list as a JSON array of strings without HTML escaping.
// A nil list encodes as an empty array.
func (b BiasList) MarshalJSON() ([]byte, error) {
	if b == nil {
		b = BiasList{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]string(b)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ParseBiasList decodes a JSON array of strings
func ParseBiasList(data []byte) (BiasList, error) {
	var terms []string
	if err := json.Unmarshal(data, &terms); err != nil {
		return nil, fmt.Errorf("invalid bias list: %w", err)
	}
	return BiasList(terms), nil
}
