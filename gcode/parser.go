package gcode

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Parser reads blocks from line-oriented gcode text.
type Parser struct {
	br   *bufio.Reader
	line int
}

var _ Reader = &Parser{}

func NewParser(r io.Reader) *Parser {
	if br, ok := r.(*bufio.Reader); ok {
		return &Parser{br: br}
	}

	return &Parser{br: bufio.NewReader(r)}
}

var (
	rx        = regexp.MustCompile(`^([A-Z][+\-]?[0-9.]+)+$`)
	rxSplit   = regexp.MustCompile(`[A-Z][+\-]?[0-9.]+`)
	rxComment = regexp.MustCompile(`\([^)]*\)`)
)

// Read returns the next non-empty block. Comments (`;` to end of line and
// parenthesized) and whitespace are ignored.
func (p *Parser) Read() (Block, error) {
	for {
		s, err := p.br.ReadString('\n')
		if err == io.EOF && s != "" {
			err = nil
		}
		if err != nil {
			return nil, err
		}
		p.line++

		s = strings.SplitN(s, ";", 2)[0]
		s = rxComment.ReplaceAllString(s, "")
		s = strings.Join(strings.Fields(s), "")
		s = strings.ToUpper(s)

		if s == "" {
			continue
		}

		if !rx.MatchString(s) {
			return nil, errors.Errorf("line %d: invalid or unhandled line: %s", p.line, s)
		}

		codes := rxSplit.FindAllString(s, -1)
		res := make(Block, len(codes))
		for i, c := range codes {
			res[i].W = c[0]
			res[i].Arg, err = strconv.ParseFloat(c[1:], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", p.line)
			}
		}

		return res, nil
	}
}
