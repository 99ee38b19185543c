package docpipe

import (
	"encoding/hex"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

// TJ displacements below this (thousandths of text space) read as a word gap.
const tjWordGap = -250

var utf16BE = xunicode.UTF16(xunicode.BigEndian, xunicode.IgnoreBOM)

type csKind int

const (
	csNumber csKind = iota
	csString
	csName
	csArray
	csDict
	csKeyword
)

// csToken is one content stream object. Arrays carry their flattened elements.
type csToken struct {
	kind  csKind
	num   float64
	bytes []byte
	elems []csToken
}

// csLexer tokenizes a decoded page content stream.
type csLexer struct {
	data []byte
	pos  int
}

func isPDFSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isPDFDelim(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func (lx *csLexer) peek(off int) byte {
	if lx.pos+off < len(lx.data) {
		return lx.data[lx.pos+off]
	}
	return 0
}

func (lx *csLexer) skipRegular() {
	for lx.pos < len(lx.data) && !isPDFSpace(lx.data[lx.pos]) && !isPDFDelim(lx.data[lx.pos]) {
		lx.pos++
	}
}

// next returns the next token. Arrays and dictionaries are returned whole.
func (lx *csLexer) next() (csToken, bool) {
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		switch {
		case isPDFSpace(c):
			lx.pos++
		case c == '%':
			for lx.pos < len(lx.data) && lx.data[lx.pos] != '\n' && lx.data[lx.pos] != '\r' {
				lx.pos++
			}
		case c == '(':
			lx.pos++
			return csToken{kind: csString, bytes: lx.literalString()}, true
		case c == '<' && lx.peek(1) == '<':
			lx.pos += 2
			lx.skipDict()
			return csToken{kind: csDict}, true
		case c == '<':
			lx.pos++
			return csToken{kind: csString, bytes: lx.hexString()}, true
		case c == '[':
			lx.pos++
			return csToken{kind: csArray, elems: lx.array()}, true
		case c == '/':
			lx.pos++
			start := lx.pos
			lx.skipRegular()
			return csToken{kind: csName, bytes: lx.data[start:lx.pos]}, true
		case isPDFDelim(c):
			// Stray ) > ] { }.
			lx.pos++
		default:
			start := lx.pos
			lx.skipRegular()
			word := lx.data[start:lx.pos]
			if f, err := strconv.ParseFloat(string(word), 64); err == nil {
				return csToken{kind: csNumber, num: f}, true
			}
			return csToken{kind: csKeyword, bytes: word}, true
		}
	}
	return csToken{}, false
}

func (lx *csLexer) array() []csToken {
	var elems []csToken
	for {
		for lx.pos < len(lx.data) && isPDFSpace(lx.data[lx.pos]) {
			lx.pos++
		}
		if lx.pos >= len(lx.data) {
			return elems
		}
		if lx.data[lx.pos] == ']' {
			lx.pos++
			return elems
		}
		tok, ok := lx.next()
		if !ok {
			return elems
		}
		if tok.kind == csArray {
			elems = append(elems, tok.elems...)
			continue
		}
		elems = append(elems, tok)
	}
}

func (lx *csLexer) skipDict() {
	depth := 1
	for lx.pos < len(lx.data) && depth > 0 {
		switch {
		case lx.data[lx.pos] == '(':
			lx.pos++
			lx.literalString()
		case lx.data[lx.pos] == '<' && lx.peek(1) == '<':
			depth++
			lx.pos += 2
		case lx.data[lx.pos] == '>' && lx.peek(1) == '>':
			depth--
			lx.pos += 2
		default:
			lx.pos++
		}
	}
}

// literalString reads a (...) string body, honouring nesting and escapes.
func (lx *csLexer) literalString() []byte {
	var out []byte
	depth := 1
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		lx.pos++
		switch c {
		case '\\':
			if lx.pos >= len(lx.data) {
				return out
			}
			e := lx.data[lx.pos]
			lx.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if lx.peek(0) == '\n' {
					lx.pos++
				}
			case '\n':
				// Line continuation.
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for i := 0; i < 2 && lx.peek(0) >= '0' && lx.peek(0) <= '7'; i++ {
						val = val*8 + int(lx.data[lx.pos]-'0')
						lx.pos++
					}
					out = append(out, byte(val))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out
}

func (lx *csLexer) hexString() []byte {
	var digits []byte
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		lx.pos++
		if c == '>' {
			break
		}
		if !isPDFSpace(c) {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out, err := hex.DecodeString(string(digits))
	if err != nil {
		return nil
	}
	return out
}

// skipInlineImage moves past the binary data of a BI ... ID ... EI block.
func (lx *csLexer) skipInlineImage() {
	for i := lx.pos; i+1 < len(lx.data); i++ {
		if lx.data[i] != 'E' || lx.data[i+1] != 'I' {
			continue
		}
		before := i == 0 || isPDFSpace(lx.data[i-1])
		after := i+2 == len(lx.data) || isPDFSpace(lx.data[i+2]) || isPDFDelim(lx.data[i+2])
		if before && after {
			lx.pos = i + 2
			return
		}
	}
	lx.pos = len(lx.data)
}

// textState tracks enough of the text matrix to split output into lines.
type textState struct {
	sb          strings.Builder
	lineY       float64
	lastY       float64
	leading     float64
	lineHasText bool
	moved       bool
	breakNext   bool
	spaceNext   bool

	fonts     map[string]*pdfFont
	font      *pdfFont
	fontStack []*pdfFont
}

// scanContentText returns the text shown by a content stream, one line per
// baseline, normalized with normalizeLines. fonts maps resource names to
// decoders; strings shown with an unknown font go through decodePDFText.
func scanContentText(data []byte, fonts map[string]*pdfFont) string {
	lx := &csLexer{data: data}
	st := &textState{fonts: fonts}
	var operands []csToken

	for {
		tok, ok := lx.next()
		if !ok {
			break
		}
		if tok.kind != csKeyword {
			operands = append(operands, tok)
			continue
		}
		switch op := string(tok.bytes); op {
		case "BI":
			// Dictionary pairs up to ID are plain tokens.
			for {
				t, ok := lx.next()
				if !ok || (t.kind == csKeyword && string(t.bytes) == "ID") {
					break
				}
			}
			lx.skipInlineImage()
		default:
			st.apply(op, operands)
		}
		operands = operands[:0]
	}
	return normalizeLines(st.sb.String())
}

func lastNumbers(args []csToken, n int) ([]float64, bool) {
	if len(args) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i, a := range args[len(args)-n:] {
		if a.kind != csNumber {
			return nil, false
		}
		out[i] = a.num
	}
	return out, true
}

func lastOperand(args []csToken, kind csKind) (csToken, bool) {
	if len(args) == 0 || args[len(args)-1].kind != kind {
		return csToken{}, false
	}
	return args[len(args)-1], true
}

func (st *textState) apply(op string, args []csToken) {
	switch op {
	case "q":
		st.fontStack = append(st.fontStack, st.font)
	case "Q":
		if n := len(st.fontStack); n > 0 {
			st.font = st.fontStack[n-1]
			st.fontStack = st.fontStack[:n-1]
		}
	case "Tf":
		if len(args) >= 2 && args[len(args)-2].kind == csName {
			st.font = st.fonts[string(args[len(args)-2].bytes)]
		}
	case "BT":
		st.lineY = 0
		st.moved = true
	case "Td", "TD":
		v, ok := lastNumbers(args, 2)
		if !ok {
			return
		}
		st.lineY += v[1]
		if op == "TD" {
			st.leading = -v[1]
		}
		if v[0] != 0 || v[1] != 0 {
			st.moved = true
		}
	case "Tm":
		v, ok := lastNumbers(args, 6)
		if !ok {
			return
		}
		st.lineY = v[5]
		st.moved = true
	case "TL":
		if v, ok := lastNumbers(args, 1); ok {
			st.leading = v[0]
		}
	case "T*":
		st.nextLine()
	case "Tj":
		if s, ok := lastOperand(args, csString); ok {
			st.show(s.bytes)
		}
	case "'", "\"":
		st.nextLine()
		if s, ok := lastOperand(args, csString); ok {
			st.show(s.bytes)
		}
	case "TJ":
		arr, ok := lastOperand(args, csArray)
		if !ok {
			return
		}
		for _, e := range arr.elems {
			switch e.kind {
			case csString:
				st.show(e.bytes)
			case csNumber:
				if e.num < tjWordGap {
					st.spaceNext = true
				}
			}
		}
	}
}

func (st *textState) nextLine() {
	st.lineY -= st.leading
	st.breakNext = true
}

func (st *textState) show(raw []byte) {
	var text string
	if st.font != nil {
		text = st.font.decode(raw)
	} else {
		text = decodePDFText(raw)
	}
	if text == "" {
		return
	}
	if st.lineHasText {
		switch {
		case st.breakNext || math.Abs(st.lineY-st.lastY) > 1:
			st.sb.WriteByte('\n')
		case st.moved || st.spaceNext:
			cur := st.sb.String()
			if cur[len(cur)-1] != ' ' && text[0] != ' ' {
				st.sb.WriteByte(' ')
			}
		}
	}
	st.sb.WriteString(text)
	st.lineHasText = true
	st.lastY = st.lineY
	st.moved, st.breakNext, st.spaceNext = false, false, false
}

// decodePDFText maps string bytes shown without a known font to UTF-8:
// UTF-16BE when marked or shaped like it, WinAnsi (CP1252) otherwise.
func decodePDFText(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var (
		decoded []byte
		err     error
	)
	switch {
	case len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF:
		decoded, err = utf16BE.NewDecoder().Bytes(raw[2:])
	case looksUTF16BE(raw):
		decoded, err = utf16BE.NewDecoder().Bytes(raw)
	default:
		decoded, err = charmap.Windows1252.NewDecoder().Bytes(raw)
	}
	if err != nil {
		decoded = raw
	}
	return cleanPDFText(string(decoded))
}

// cleanPDFText drops control characters and turns embedded line breaks into
// spaces.
func cleanPDFText(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return ' '
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}

// looksUTF16BE reports whether raw is an even-length run of two-byte units
// whose high bytes are all zero.
func looksUTF16BE(raw []byte) bool {
	if len(raw) < 2 || len(raw)%2 != 0 {
		return false
	}
	nonZero := false
	for i := 0; i < len(raw); i += 2 {
		if raw[i] != 0 {
			return false
		}
		if raw[i+1] != 0 {
			nonZero = true
		}
	}
	return nonZero
}
