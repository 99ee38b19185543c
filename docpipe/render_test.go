package docpipe

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestLinesPerPage(t *testing.T) {
	if n := LinesPerPage(); n != 50 {
		t.Errorf("LinesPerPage() = %d, want 50", n)
	}
}

func TestLayoutPages_SkipsBlankLines(t *testing.T) {
	pages := layoutPages([]string{"", "  first  ", "\t", "second", "   "})
	if len(pages) != 1 {
		t.Fatalf("pages = %d, want 1", len(pages))
	}
	want := []renderedLine{
		{Text: "first", Y: PageHeight - MarginTop},
		{Text: "second", Y: PageHeight - MarginTop - LinePitch},
	}
	if !reflect.DeepEqual(pages[0].Lines, want) {
		t.Errorf("lines = %+v, want %+v", pages[0].Lines, want)
	}
}

func TestLayoutPages_EmbeddedBreaks(t *testing.T) {
	pages := layoutPages([]string{"a\nb", "c\td"})
	var got []string
	for _, l := range pages[0].Lines {
		got = append(got, l.Text)
	}
	if want := []string{"a", "b", "c d"}; !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %q, want %q", got, want)
	}
}

func TestLayoutPages_AlwaysOnePage(t *testing.T) {
	for _, in := range [][]string{nil, {}, {"", "  "}} {
		pages := layoutPages(in)
		if len(pages) != 1 || len(pages[0].Lines) != 0 {
			t.Errorf("layoutPages(%q) = %+v, want one empty page", in, pages)
		}
	}
}

func TestLayoutPages_PageBreaks(t *testing.T) {
	lines := numberedLines(120)
	// Blank lines take no space.
	lines = append(lines[:60], append([]string{"", " "}, lines[60:]...)...)

	pages := layoutPages(lines)
	if len(pages) != 3 {
		t.Fatalf("pages = %d, want 3", len(pages))
	}
	for i, want := range []int{50, 50, 20} {
		if got := len(pages[i].Lines); got != want {
			t.Errorf("page %d has %d lines, want %d", i+1, got, want)
		}
	}
	for _, p := range pages {
		for _, l := range p.Lines {
			if l.Y < MarginBottom || l.Y > PageHeight-MarginTop {
				t.Errorf("line %q at y=%v is outside the margins", l.Text, l.Y)
			}
		}
	}

	// An exactly full page does not leave a trailing empty page.
	if got := len(layoutPages(numberedLines(50))); got != 1 {
		t.Errorf("50 lines: pages = %d, want 1", got)
	}
	if got := len(layoutPages(numberedLines(51))); got != 2 {
		t.Errorf("51 lines: pages = %d, want 2", got)
	}
}

func numberedLines(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("line-%03d", i+1)
	}
	return out
}

func TestRenderPDF_Header(t *testing.T) {
	data, err := New(Config{}).RenderPDF(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("RenderPDF: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Errorf("output does not start with a PDF header: %q", data[:min(len(data), 16)])
	}
}

func TestRenderPDF_RoundTrip(t *testing.T) {
	pipe := New(Config{})
	data, err := pipe.RenderPDF(context.Background(), []string{"Line1", "Line2"})
	if err != nil {
		t.Fatalf("RenderPDF: %v", err)
	}

	res, err := pipe.Extract(context.Background(), SourceDocument{Format: FormatPDF, Data: data})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Content != "Line1\nLine2" {
		t.Errorf("content = %q, want %q", res.Content, "Line1\nLine2")
	}
	if res.Pages != 1 {
		t.Errorf("pages = %d, want 1", res.Pages)
	}
}

func TestRenderPDF_MultiPageRoundTrip(t *testing.T) {
	pipe := New(Config{})
	lines := numberedLines(120)
	data, err := pipe.RenderPDF(context.Background(), lines)
	if err != nil {
		t.Fatalf("RenderPDF: %v", err)
	}

	res, err := pipe.Extract(context.Background(), SourceDocument{Format: FormatPDF, Data: data})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Pages != 3 {
		t.Errorf("pages = %d, want 3", res.Pages)
	}
	if got := strings.Split(res.Content, "\n"); !reflect.DeepEqual(got, lines) {
		t.Errorf("recovered %d lines, want %d in order; got %q", len(got), len(lines), got)
	}

	plain, err := New(Config{PDFBackend: PDFPlain}).Extract(context.Background(), SourceDocument{Format: FormatPDF, Data: data})
	if err != nil {
		t.Fatalf("plain Extract: %v", err)
	}
	last := -1
	for _, l := range lines {
		i := strings.Index(plain.Content, l)
		if i <= last {
			t.Fatalf("plain backend: %q missing or out of order", l)
		}
		last = i
	}
}

func TestRenderPDF_EmptyInput(t *testing.T) {
	pipe := New(Config{})
	data, err := pipe.RenderPDF(context.Background(), []string{"", "   "})
	if err != nil {
		t.Fatalf("RenderPDF: %v", err)
	}
	res, err := pipe.Extract(context.Background(), SourceDocument{Format: FormatPDF, Data: data})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !res.IsEmpty || res.Pages != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestRenderPDF_Latin1(t *testing.T) {
	pipe := New(Config{})
	data, err := pipe.RenderPDF(context.Background(), []string{"Café crème", "naïve"})
	if err != nil {
		t.Fatalf("RenderPDF: %v", err)
	}
	res, err := pipe.Extract(context.Background(), SourceDocument{Format: FormatPDF, Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "Café crème\nnaïve" {
		t.Errorf("content = %q", res.Content)
	}
}

func TestRenderPDF_Vietnamese(t *testing.T) {
	pipe := New(Config{})
	lines := []string{"Tên học phần: Cơ sở dữ liệu", "Số tín chỉ: 3", "Mục tiêu: Đánh giá"}
	data, err := pipe.RenderPDF(context.Background(), lines)
	if err != nil {
		t.Fatalf("RenderPDF: %v", err)
	}
	res, err := pipe.Extract(context.Background(), SourceDocument{Format: FormatPDF, Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if want := strings.Join(lines, "\n"); res.Content != want {
		t.Errorf("content = %q, want %q", res.Content, want)
	}
}

func TestExtract_DocxSyntheticKeepsText(t *testing.T) {
	data := buildDocx(t, para("Tên học phần")+para("Số tín chỉ")+table([]string{"Ghi chú – “ngắn”"}))
	doc := SourceDocument{Name: "syllabus.docx", Format: FormatDocx, Data: data}

	direct, err := New(Config{}).Extract(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	synthetic, err := New(Config{DocxMode: DocxSynthetic}).Extract(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if synthetic.Content != direct.Content {
		t.Errorf("synthetic = %q, direct = %q", synthetic.Content, direct.Content)
	}
}

func TestLayoutPages_RenderableRunes(t *testing.T) {
	pages := layoutPages([]string{"a\x01b\tc", "smile \U0001F600"})
	var got []string
	for _, l := range pages[0].Lines {
		got = append(got, l.Text)
	}
	if want := []string{"ab c", "smile \uFFFD"}; !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %q, want %q", got, want)
	}
}
