package gcode

import (
	"strings"

	"github.com/pkg/errors"
)

// Block is a single line of gcode.
type Block []Word

func (b Block) Arg(w byte) (bool, float64) {
	for _, g := range b {
		if g.W == w {
			return true, g.Arg
		}
	}
	return false, 0
}

// Has reports if the block contains the exact word.
func (b Block) Has(letter byte, arg float64) bool {
	for _, g := range b {
		if g.Is(letter, arg) {
			return true
		}
	}
	return false
}

func (b Block) SetArg(w byte, val float64) {
	for i, g := range b {
		if g.W == w {
			b[i].Arg = val
			return
		}
	}
}

// Args returns the words that do not belong to a modal group (axes, P, T, ...).
func (b Block) Args() Block {
	res := make(Block, 0, len(b))
	for _, g := range b {
		if g.ModalGroup() == ModalGroupNone {
			res = append(res, g)
		}
	}
	return res
}

func (b Block) Clone() Block {
	c := make(Block, len(b))
	copy(c, b)
	return c
}

func (b Block) String() string {
	var sb strings.Builder
	for _, w := range b {
		sb.WriteString(w.String())
	}
	return sb.String()
}

func (b Block) Validate() error {
	var checkWord [256]bool
	var checkModal [256]bool

	for _, g := range b {
		if !g.IsValid() {
			return errors.Errorf("invalid word '%c' in block", g.W)
		}
		if g.W != 'G' && g.W != 'M' && checkWord[g.W] {
			return errors.Errorf("word '%c' was repeated in a block", g.W)
		}
		checkWord[g.W] = true
		m := g.ModalGroup()
		if m == ModalGroupNone {
			continue
		}
		if checkModal[m] {
			return errors.New("multiple words from same modal group: " + b.String())
		}
		checkModal[m] = true
	}

	return nil
}
