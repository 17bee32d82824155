// Package options decodes the conversion option bitset.
package options

import (
	"strconv"
	"strings"
)

// Flags is the bitwise OR of the conversion options.
type Flags uint32

const (
	DisplayTitle Flags = 1 << iota
	AddHeaderPageOne
	AddHeaderAllPages
	AddLineBottomEachPage
)

const known = DisplayTitle | AddHeaderPageOne | AddHeaderAllPages | AddLineBottomEachPage

// Parse reads a base-10 signed 32-bit integer, with an optional leading
// sign. Empty, negative, non-numeric and out-of-range input all yield 0.
// Unknown bits are kept.
func Parse(raw string) Flags {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil || v < 0 {
		return 0
	}
	return Flags(v)
}

// Has reports whether every bit of flag is set. Only the four known options
// can be reported.
func (f Flags) Has(flag Flags) bool {
	flag &= known
	return flag != 0 && f&flag == flag
}

// Known masks off unknown bits.
func (f Flags) Known() Flags { return f & known }

func (f Flags) String() string {
	if f.Known() == 0 {
		return "None"
	}
	var names []string
	for _, o := range []struct {
		flag Flags
		name string
	}{
		{DisplayTitle, "DisplayTitle"},
		{AddHeaderPageOne, "AddHeaderPageOne"},
		{AddHeaderAllPages, "AddHeaderAllPages"},
		{AddLineBottomEachPage, "AddLineBottomEachPage"},
	} {
		if f.Has(o.flag) {
			names = append(names, o.name)
		}
	}
	return strings.Join(names, "|")
}
