package gcode

import (
	"strconv"
	"strings"
)

// Word is a single letter/argument pair, e.g. `G53` or `Z-10`.
type Word struct {
	W   byte
	Arg float64
}

// G returns a G-word.
func G(arg float64) Word { return Word{W: 'G', Arg: arg} }

// M returns an M-word.
func M(arg float64) Word { return Word{W: 'M', Arg: arg} }

func (w Word) IsAxis() bool {
	switch w.W {
	case 'X', 'Y', 'Z':
		return true
	}
	return false
}

func (w Word) IsValid() bool {
	return w.W >= 'A' && w.W <= 'Z'
}

// Is reports if w has the given letter and argument.
func (w Word) Is(letter byte, arg float64) bool {
	return w.W == letter && w.Arg == arg
}

func formatFloat(f float64, prec int) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
	}
	s = strings.TrimRight(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

func (w Word) String() string {
	return string(w.W) + formatFloat(w.Arg, 4)
}
