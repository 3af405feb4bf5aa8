// Package codec maps dish names to dense class indexes and back.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrUnknownLabel    = errors.New("unknown label")
	ErrIndexOutOfRange = errors.New("class index out of range")
	ErrInvalidLabels   = errors.New("invalid label list")
)

// Codec is immutable after Fit and safe for concurrent use.
type Codec struct {
	labels []string
	index  map[string]int
}

// Fit assigns index i to labels[i]. The list must be non-empty and free of
// duplicates.
func Fit(labels []string) (*Codec, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidLabels)
	}

	c := &Codec{
		labels: make([]string, len(labels)),
		index:  make(map[string]int, len(labels)),
	}
	copy(c.labels, labels)
	for i, l := range c.labels {
		if _, dup := c.index[l]; dup {
			return nil, fmt.Errorf("%w: duplicate label %q", ErrInvalidLabels, l)
		}
		c.index[l] = i
	}
	return c, nil
}

// FitSorted fits the codec on the sorted unique values of labels.
func FitSorted(labels []string) (*Codec, error) {
	return Fit(SortedUnique(labels))
}

// Encode returns the index of label or ErrUnknownLabel.
func (c *Codec) Encode(label string) (int, error) {
	i, ok := c.index[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	return i, nil
}

// Decode returns the label at index or ErrIndexOutOfRange.
func (c *Codec) Decode(index int) (string, error) {
	if index < 0 || index >= len(c.labels) {
		return "", fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(c.labels))
	}
	return c.labels[index], nil
}

// Len is the number of classes.
func (c *Codec) Len() int {
	return len(c.labels)
}

// Labels returns a copy of the labels in index order.
func (c *Codec) Labels() []string {
	out := make([]string, len(c.labels))
	copy(out, c.labels)
	return out
}

// Equal reports whether labels matches the codec's index order exactly.
func (c *Codec) Equal(labels []string) bool {
	if len(labels) != len(c.labels) {
		return false
	}
	for i := range labels {
		if labels[i] != c.labels[i] {
			return false
		}
	}
	return true
}

type codecJSON struct {
	Labels []string `json:"labels"`
}

func (c *Codec) MarshalJSON() ([]byte, error) {
	return json.Marshal(codecJSON{Labels: c.labels})
}

func (c *Codec) UnmarshalJSON(data []byte) error {
	var raw codecJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fitted, err := Fit(raw.Labels)
	if err != nil {
		return err
	}
	*c = *fitted
	return nil
}

// SortedUnique returns the distinct labels in lexical order.
func SortedUnique(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
