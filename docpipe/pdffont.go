package docpipe

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// pdfFont decodes the string operands shown with one font resource.
type pdfFont struct {
	// composite fonts (Type0) use multi-byte codes, two bytes unless the
	// ToUnicode codespace says otherwise.
	composite bool
	toUnicode *toUnicodeMap
	// simple maps single-byte codes of non-composite fonts.
	simple *[256]rune
}

// pageFonts resolves the /Font resources of a page, keyed by resource name.
// Fonts that cannot be resolved are left out and their text falls back to
// decodePDFText.
func pageFonts(ctx *model.Context, pageNr int) map[string]*pdfFont {
	pageDict, _, inh, err := ctx.PageDict(pageNr, false)
	if err != nil {
		return nil
	}
	var res types.Dict
	if inh != nil {
		res = inh.Resources
	}
	if res == nil && pageDict != nil {
		if o, found := pageDict.Find("Resources"); found {
			res, _ = ctx.DereferenceDict(o)
		}
	}
	if res == nil {
		return nil
	}
	o, found := res.Find("Font")
	if !found {
		return nil
	}
	fontDict, err := ctx.DereferenceDict(o)
	if err != nil || len(fontDict) == 0 {
		return nil
	}

	fonts := make(map[string]*pdfFont, len(fontDict))
	for name, ref := range fontDict {
		fd, err := ctx.DereferenceDict(ref)
		if err != nil || fd == nil {
			continue
		}
		fonts[name] = loadFont(ctx.XRefTable, fd)
	}
	return fonts
}

func loadFont(xref *model.XRefTable, fd types.Dict) *pdfFont {
	f := &pdfFont{}
	if subtype := fd.NameEntry("Subtype"); subtype != nil && *subtype == "Type0" {
		f.composite = true
	}
	if o, found := fd.Find("ToUnicode"); found {
		if sd, _, err := xref.DereferenceStreamDict(o); err == nil && sd != nil {
			if err := sd.Decode(); err == nil {
				f.toUnicode = parseToUnicode(sd.Content)
			}
		}
	}
	if !f.composite {
		enc, _ := fd.Find("Encoding")
		f.simple = simpleEncoding(xref, enc)
	}
	return f
}

// decode maps raw string bytes to text through the font.
func (f *pdfFont) decode(raw []byte) string {
	if f.toUnicode == nil && f.composite {
		// No way to map CIDs back to text: try the generic heuristics.
		return decodePDFText(raw)
	}

	var sb strings.Builder
	if f.toUnicode != nil {
		width := 1
		if f.composite {
			width = 2
		}
		for len(raw) > 0 {
			code, n := f.toUnicode.nextCode(raw, width)
			if s, ok := f.toUnicode.lookup(code); ok {
				sb.WriteString(s)
			} else if f.simple != nil && n == 1 {
				sb.WriteRune(f.simple[raw[0]])
			}
			raw = raw[n:]
		}
	} else {
		for _, b := range raw {
			sb.WriteRune(f.simple[b])
		}
	}
	return cleanPDFText(sb.String())
}

// --- ToUnicode CMaps ---

type cmapCode struct {
	width int
	code  uint32
}

type codeSpace struct {
	lo, hi []byte
}

type bfRange struct {
	width  int
	lo, hi uint32
	dst    []byte   // first destination, incremented across the range
	dstArr [][]byte // one destination per code
}

// toUnicodeMap is the subset of a ToUnicode CMap needed to map codes to text.
type toUnicodeMap struct {
	spaces []codeSpace
	chars  map[cmapCode]string
	ranges []bfRange
}

// parseToUnicode reads codespace ranges, bfchar and bfrange entries. It
// returns nil when the stream holds no mappings.
func parseToUnicode(data []byte) *toUnicodeMap {
	m := &toUnicodeMap{chars: make(map[cmapCode]string)}
	lx := &csLexer{data: data}
	var ops []csToken
	for {
		tok, ok := lx.next()
		if !ok {
			break
		}
		if tok.kind != csKeyword {
			ops = append(ops, tok)
			continue
		}
		switch string(tok.bytes) {
		case "endcodespacerange":
			for i := 0; i+1 < len(ops); i += 2 {
				lo, hi := ops[i], ops[i+1]
				if validCode(lo) && validCode(hi) && len(lo.bytes) == len(hi.bytes) {
					m.spaces = append(m.spaces, codeSpace{lo: lo.bytes, hi: hi.bytes})
				}
			}
		case "endbfchar":
			for i := 0; i+1 < len(ops); i += 2 {
				src, dst := ops[i], ops[i+1]
				if validCode(src) && dst.kind == csString {
					m.chars[codeOf(src.bytes)] = utf16Text(dst.bytes)
				}
			}
		case "endbfrange":
			for i := 0; i+2 < len(ops); i += 3 {
				lo, hi, dst := ops[i], ops[i+1], ops[i+2]
				if !validCode(lo) || !validCode(hi) || len(lo.bytes) != len(hi.bytes) {
					continue
				}
				r := bfRange{width: len(lo.bytes), lo: codeOf(lo.bytes).code, hi: codeOf(hi.bytes).code}
				switch dst.kind {
				case csString:
					r.dst = dst.bytes
				case csArray:
					for _, e := range dst.elems {
						r.dstArr = append(r.dstArr, e.bytes)
					}
				default:
					continue
				}
				m.ranges = append(m.ranges, r)
			}
		}
		ops = ops[:0]
	}
	if len(m.chars) == 0 && len(m.ranges) == 0 {
		return nil
	}
	return m
}

func validCode(t csToken) bool {
	return t.kind == csString && len(t.bytes) >= 1 && len(t.bytes) <= 4
}

func codeOf(b []byte) cmapCode {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return cmapCode{width: len(b), code: v}
}

// nextCode splits the leading code off raw using the codespace ranges, or
// fixed-width codes of defWidth bytes when none match.
func (m *toUnicodeMap) nextCode(raw []byte, defWidth int) (cmapCode, int) {
	for n := 1; n <= 4 && n <= len(raw); n++ {
		for _, sp := range m.spaces {
			if len(sp.lo) == n && inCodeSpace(raw[:n], sp) {
				return codeOf(raw[:n]), n
			}
		}
	}
	n := min(defWidth, len(raw))
	return codeOf(raw[:n]), n
}

func inCodeSpace(b []byte, sp codeSpace) bool {
	for i, c := range b {
		if c < sp.lo[i] || c > sp.hi[i] {
			return false
		}
	}
	return true
}

func (m *toUnicodeMap) lookup(c cmapCode) (string, bool) {
	if s, ok := m.chars[c]; ok {
		return s, true
	}
	for _, r := range m.ranges {
		if r.width != c.width || c.code < r.lo || c.code > r.hi {
			continue
		}
		off := c.code - r.lo
		if r.dstArr != nil {
			if int(off) < len(r.dstArr) {
				return utf16Text(r.dstArr[off]), true
			}
			return "", false
		}
		return utf16Text(incrementDst(r.dst, off)), true
	}
	return "", false
}

// incrementDst adds off to the last UTF-16 unit of dst.
func incrementDst(dst []byte, off uint32) []byte {
	out := append([]byte(nil), dst...)
	switch n := len(out); {
	case n >= 2:
		v := uint32(out[n-2])<<8 | uint32(out[n-1]) + off
		out[n-2], out[n-1] = byte(v>>8), byte(v)
	case n == 1:
		out[0] += byte(off)
	}
	return out
}

// utf16Text decodes a CMap destination string, which is UTF-16BE.
func utf16Text(b []byte) string {
	if len(b) == 1 {
		return string(rune(b[0]))
	}
	s, err := utf16BE.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(s)
}

// --- simple font encodings ---

// simpleEncoding builds the byte to rune table of a non-composite font from
// its /Encoding entry: a base encoding name or a dictionary with
// /BaseEncoding and /Differences. WinAnsi is the fallback.
func simpleEncoding(xref *model.XRefTable, enc types.Object) *[256]rune {
	base := charmap.Windows1252
	var diffs types.Array

	if enc != nil {
		if o, err := xref.Dereference(enc); err == nil {
			enc = o
		}
	}
	switch e := enc.(type) {
	case types.Name:
		if e.Value() == "MacRomanEncoding" {
			base = charmap.Macintosh
		}
	case types.Dict:
		if name := e.NameEntry("BaseEncoding"); name != nil && *name == "MacRomanEncoding" {
			base = charmap.Macintosh
		}
		if o, found := e.Find("Differences"); found {
			diffs, _ = xref.DereferenceArray(o)
		}
	}

	var table [256]rune
	for i := range table {
		table[i] = base.DecodeByte(byte(i))
	}

	code := -1
	for _, o := range diffs {
		switch v := o.(type) {
		case types.Integer:
			code = v.Value()
		case types.Name:
			if code >= 0 && code < len(table) {
				if r := glyphRune(v.Value()); r != 0 {
					table[code] = r
				}
			}
			code++
		}
	}
	return &table
}

var glyphNames = map[string]rune{
	"space": ' ', "exclam": '!', "quotedbl": '"', "numbersign": '#', "dollar": '$',
	"percent": '%', "ampersand": '&', "quotesingle": '\'', "parenleft": '(', "parenright": ')',
	"asterisk": '*', "plus": '+', "comma": ',', "hyphen": '-', "period": '.', "slash": '/',
	"zero": '0', "one": '1', "two": '2', "three": '3', "four": '4',
	"five": '5', "six": '6', "seven": '7', "eight": '8', "nine": '9',
	"colon": ':', "semicolon": ';', "less": '<', "equal": '=', "greater": '>', "question": '?',
	"at": '@', "bracketleft": '[', "backslash": '\\', "bracketright": ']', "asciicircum": '^',
	"underscore": '_', "grave": '`', "braceleft": '{', "bar": '|', "braceright": '}', "asciitilde": '~',
	"quoteleft": '‘', "quoteright": '’', "quotesinglbase": '‚', "quotedblleft": '“',
	"quotedblright": '”', "quotedblbase": '„', "guillemotleft": '«', "guillemotright": '»',
	"bullet": '•', "endash": '–', "emdash": '—', "ellipsis": '…', "minus": '−',
	"degree": '°', "copyright": '©', "registered": '®', "trademark": '™', "section": '§',
	"paragraph": '¶', "euro": '€', "Euro": '€', "sterling": '£', "yen": '¥', "cent": '¢',
	"multiply": '×', "divide": '÷', "periodcentered": '·', "exclamdown": '¡', "questiondown": '¿',
	"dagger": '†', "daggerdbl": '‡', "perthousand": '‰', "florin": 'ƒ', "nbspace": ' ',
	"fi": 'ﬁ', "fl": 'ﬂ', "dotlessi": 'ı', "dcroat": 'đ', "Dcroat": 'Đ', "oslash": 'ø',
	"Oslash": 'Ø', "ae": 'æ', "AE": 'Æ', "oe": 'œ', "OE": 'Œ', "germandbls": 'ß',
	"eth": 'ð', "Eth": 'Ð', "thorn": 'þ', "Thorn": 'Þ', "lslash": 'ł', "Lslash": 'Ł',
}

// Accent suffixes of composed glyph names such as "ecircumflexacute".
var glyphAccents = []struct {
	name string
	mark rune
}{
	{"acute", '\u0301'}, {"grave", '\u0300'}, {"circumflex", '\u0302'}, {"tilde", '\u0303'},
	{"macron", '\u0304'}, {"breve", '\u0306'}, {"dotaccent", '\u0307'}, {"dieresis", '\u0308'},
	{"hookabove", '\u0309'}, {"ring", '\u030A'}, {"hungarumlaut", '\u030B'}, {"caron", '\u030C'},
	{"horn", '\u031B'}, {"dotbelow", '\u0323'}, {"cedilla", '\u0327'}, {"ogonek", '\u0328'},
}

// glyphRune maps a glyph name from a /Differences array to its rune, or 0.
func glyphRune(name string) rune {
	if r, ok := glyphNames[name]; ok {
		return r
	}
	switch {
	case len(name) == 7 && strings.HasPrefix(name, "uni"):
		if v, err := strconv.ParseUint(name[3:], 16, 32); err == nil {
			return rune(v)
		}
	case len(name) >= 5 && len(name) <= 7 && name[0] == 'u':
		if v, err := strconv.ParseUint(name[1:], 16, 32); err == nil && utf8.ValidRune(rune(v)) {
			return rune(v)
		}
	}
	if name == "" || !isASCIILetter(name[0]) {
		return 0
	}
	if len(name) == 1 {
		return rune(name[0])
	}

	composed := []rune{rune(name[0])}
	for rest := name[1:]; rest != ""; {
		matched := false
		for _, a := range glyphAccents {
			if strings.HasPrefix(rest, a.name) {
				composed = append(composed, a.mark)
				rest = rest[len(a.name):]
				matched = true
				break
			}
		}
		if !matched {
			return 0
		}
	}
	out := []rune(norm.NFC.String(string(composed)))
	if len(out) != 1 {
		return 0
	}
	return out[0]
}

func isASCIILetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
