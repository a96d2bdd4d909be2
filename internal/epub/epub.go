// Package epub writes minimal EPUB 3 books.
package epub

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"html"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/go-faster/errors"
	"github.com/k3a/html2text"
	"github.com/klauspost/compress/zip"
)

const mimetype = "application/epub+zip"

// Section is a titled block of HTML inside a chapter.
type Section struct {
	Title string
	HTML  string
}

// Chapter becomes one XHTML document of the book.
type Chapter struct {
	Title    string
	Subtitle string
	Sections []Section
}

// Book is the content of an EPUB.
type Book struct {
	ID          string // UUID, rendered as urn:uuid:<ID>
	Title       string
	Author      string
	Language    string
	Description string
	Modified    time.Time
	Chapters    []Chapter
}

// Write encodes b as an EPUB 3 archive. The mimetype entry is stored first
// and uncompressed.
func Write(w io.Writer, b Book) error {
	if b.ID == "" {
		return errors.New("epub: book id is required")
	}
	if b.Title == "" {
		return errors.New("epub: book title is required")
	}
	if b.Language == "" {
		b.Language = "fr"
	}
	if b.Modified.IsZero() {
		b.Modified = time.Now()
	}

	zw := zip.NewWriter(w)

	mw, err := zw.CreateRaw(&zip.FileHeader{
		Name:               "mimetype",
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE([]byte(mimetype)),
		CompressedSize64:   uint64(len(mimetype)),
		UncompressedSize64: uint64(len(mimetype)),
	})
	if err != nil {
		return errors.Wrap(err, "create mimetype")
	}
	if _, err := io.WriteString(mw, mimetype); err != nil {
		return errors.Wrap(err, "write mimetype")
	}

	files := []entry{
		{"META-INF/container.xml", containerTmpl, nil},
		{"OEBPS/content.opf", opfTmpl, newOPF(b)},
		{"OEBPS/nav.xhtml", navTmpl, newOPF(b)},
	}
	for i, ch := range b.Chapters {
		files = append(files, entry{"OEBPS/" + chapterFile(i), chapterTmpl, renderChapter(b.Language, ch)})
	}

	for _, f := range files {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: f.name, Method: zip.Deflate, Modified: b.Modified})
		if err != nil {
			return errors.Wrapf(err, "create %s", f.name)
		}
		if err := f.tmpl.Execute(fw, f.data); err != nil {
			return errors.Wrapf(err, "render %s", f.name)
		}
	}

	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "close archive")
	}
	return nil
}

// Bytes is Write into memory.
func Bytes(b Book) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type entry struct {
	name string
	tmpl *template.Template
	data any
}

func chapterFile(i int) string {
	return fmt.Sprintf("chapter-%03d.xhtml", i+1)
}

type navEntry struct {
	ID    string
	File  string
	Title string
}

type opfData struct {
	ID          string
	Title       string
	Author      string
	Language    string
	Description string
	Modified    string
	Chapters    []navEntry
}

func newOPF(b Book) opfData {
	d := opfData{
		ID:          html.EscapeString(b.ID),
		Title:       html.EscapeString(b.Title),
		Author:      html.EscapeString(b.Author),
		Language:    html.EscapeString(b.Language),
		Description: html.EscapeString(b.Description),
		Modified:    b.Modified.UTC().Format("2006-01-02T15:04:05Z"),
	}
	for i, ch := range b.Chapters {
		d.Chapters = append(d.Chapters, navEntry{
			ID:    fmt.Sprintf("chapter-%03d", i+1),
			File:  chapterFile(i),
			Title: html.EscapeString(ch.Title),
		})
	}
	return d
}

type chapterData struct {
	Language string
	Title    string
	Subtitle string
	Sections []sectionData
}

type sectionData struct {
	Title      string
	Paragraphs []string
}

// renderChapter converts free-form HTML into escaped paragraphs so the
// chapter is always well-formed XHTML.
func renderChapter(lang string, ch Chapter) chapterData {
	d := chapterData{
		Language: html.EscapeString(lang),
		Title:    html.EscapeString(ch.Title),
		Subtitle: html.EscapeString(ch.Subtitle),
	}
	for _, s := range ch.Sections {
		sd := sectionData{Title: html.EscapeString(s.Title)}
		for _, p := range Paragraphs(s.HTML) {
			sd.Paragraphs = append(sd.Paragraphs, html.EscapeString(p))
		}
		d.Sections = append(d.Sections, sd)
	}
	return d
}

// Paragraphs returns the non-empty paragraphs of an HTML fragment as
// plain text.
func Paragraphs(fragment string) []string {
	text := html2text.HTML2Text(fragment)
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		lines := strings.Fields(block)
		if len(lines) == 0 {
			continue
		}
		out = append(out, strings.Join(lines, " "))
	}
	return out
}
