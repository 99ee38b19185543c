package docpipe

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hazyhaar/docprompt/horosafe"
)

const (
	defaultDocumentPart = "word/document.xml"
	defaultMaxPartSize  = 100 * 1024 * 1024
)

// docxBlock is a body-level element: a paragraph (table == nil) or a table.
type docxBlock struct {
	text  string
	table *docxTable
}

type docxTable struct {
	rows [][]docxCell
}

type docxCell struct {
	blocks []docxBlock
}

// DocxLines returns the visible text lines of a .docx package in the order
// given by policy. Paragraph lines may be empty.
func DocxLines(data []byte, policy TablePolicy) ([]string, error) {
	return docxLines(data, policy, defaultMaxPartSize)
}

func docxLines(data []byte, policy TablePolicy, maxPart int64) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	name := mainDocumentPart(zr)
	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == name {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("%s not found in archive", name)
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	raw, err := horosafe.LimitedReadAll(rc, maxPart)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	body, err := parseDocumentXML(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return flattenDocx(body, policy), nil
}

type docxRelationships struct {
	Relationships []struct {
		Type   string `xml:"Type,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// mainDocumentPart follows the package officeDocument relationship and falls
// back to word/document.xml.
func mainDocumentPart(zr *zip.Reader) string {
	for _, f := range zr.File {
		if f.Name != "_rels/.rels" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return defaultDocumentPart
		}
		defer rc.Close()

		var rels docxRelationships
		if err := xml.NewDecoder(io.LimitReader(rc, 1<<20)).Decode(&rels); err != nil {
			return defaultDocumentPart
		}
		for _, r := range rels.Relationships {
			if strings.HasSuffix(r.Type, "/officeDocument") && r.Target != "" {
				return strings.TrimPrefix(r.Target, "/")
			}
		}
	}
	return defaultDocumentPart
}

func parseDocumentXML(r io.Reader) ([]docxBlock, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("document body not found")
		}
		if err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "body" {
			return parseBlocks(dec, "body")
		}
	}
}

// parseBlocks collects paragraphs and tables until the end element named end.
// Wrappers such as content controls are walked through transparently.
func parseBlocks(dec *xml.Decoder, end string) ([]docxBlock, error) {
	var blocks []docxBlock
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", end, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				text, err := parseParagraph(dec)
				if err != nil {
					return nil, err
				}
				blocks = append(blocks, docxBlock{text: text})
			case "tbl":
				tbl, err := parseTable(dec)
				if err != nil {
					return nil, err
				}
				blocks = append(blocks, docxBlock{table: tbl})
			case "Fallback", "sectPr":
				if err := dec.Skip(); err != nil {
					return nil, fmt.Errorf("decode %s: %w", end, err)
				}
			}
		case xml.EndElement:
			if t.Name.Local == end {
				return blocks, nil
			}
		}
	}
}

// parseParagraph returns the visible text of a paragraph whose start element
// has already been consumed.
func parseParagraph(dec *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth, inRun, inText := 0, 0, false
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("decode paragraph: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "pPr", "rPr", "delText", "instrText", "Fallback":
				if err := dec.Skip(); err != nil {
					return "", fmt.Errorf("decode paragraph: %w", err)
				}
				continue
			case "r":
				inRun++
			case "t":
				inText = true
			case "tab":
				if inRun > 0 {
					sb.WriteByte('\t')
				}
			case "br", "cr":
				if inRun > 0 {
					sb.WriteByte('\n')
				}
			case "p":
				// Text box paragraph nested in a run.
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
			}
			depth++
		case xml.EndElement:
			if depth == 0 {
				return sb.String(), nil
			}
			depth--
			switch t.Name.Local {
			case "r":
				inRun--
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
}

func parseTable(dec *xml.Decoder) (*docxTable, error) {
	tbl := &docxTable{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode table: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tr":
				tbl.rows = append(tbl.rows, nil)
			case "tc":
				blocks, err := parseBlocks(dec, "tc")
				if err != nil {
					return nil, err
				}
				if len(tbl.rows) == 0 {
					tbl.rows = append(tbl.rows, nil)
				}
				last := len(tbl.rows) - 1
				tbl.rows[last] = append(tbl.rows[last], docxCell{blocks: blocks})
			case "tblPr", "tblGrid", "trPr":
				if err := dec.Skip(); err != nil {
					return nil, fmt.Errorf("decode table: %w", err)
				}
			}
		case xml.EndElement:
			if t.Name.Local == "tbl" {
				return tbl, nil
			}
		}
	}
}

func flattenDocx(body []docxBlock, policy TablePolicy) []string {
	var lines, cells []string
	for _, b := range body {
		switch {
		case b.table == nil:
			lines = append(lines, b.text)
		case policy == TablesInline:
			lines = appendTableLines(lines, b.table)
		default:
			cells = appendTableLines(cells, b.table)
		}
	}
	return append(lines, cells...)
}

// appendTableLines emits one line per cell, row by row. A cell's line joins
// its paragraphs; tables nested in the cell follow it.
func appendTableLines(out []string, t *docxTable) []string {
	for _, row := range t.rows {
		for _, cell := range row {
			var paras []string
			var nested []*docxTable
			for _, b := range cell.blocks {
				if b.table != nil {
					nested = append(nested, b.table)
					continue
				}
				paras = append(paras, b.text)
			}
			out = append(out, strings.Join(paras, "\n"))
			for _, n := range nested {
				out = appendTableLines(out, n)
			}
		}
	}
	return out
}
