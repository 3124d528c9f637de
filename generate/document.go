package generate

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

// Element is a single node returned by a Document query.
type Element interface {
	Name() string
	Attr(name string) (string, bool)
	Attrs() map[string]string
	Text() string
}

// Document answers CSS selector queries over parsed markup.
type Document interface {
	Find(selector string) []Element
	HTML() string
}

type goqueryDocument struct {
	doc *goquery.Document
}

type goqueryElement struct {
	s *goquery.Selection
}

// ParseDocument parses r into a goquery backed Document.
func ParseDocument(r io.Reader) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, errors.Wrap(ErrParse, err.Error())
	}
	return &goqueryDocument{doc: doc}, nil
}

func (d *goqueryDocument) Find(selector string) (elements []Element) {
	d.doc.Find(selector).Each(func(i int, s *goquery.Selection) {
		elements = append(elements, &goqueryElement{s: s})
	})
	return
}

func (d *goqueryDocument) HTML() string {
	html, _ := d.doc.Html()
	return html
}

func (e *goqueryElement) Name() string {
	return strings.ToLower(goquery.NodeName(e.s))
}

func (e *goqueryElement) Attr(name string) (string, bool) {
	return e.s.Attr(name)
}

func (e *goqueryElement) Attrs() map[string]string {
	attrs := make(map[string]string)
	if len(e.s.Nodes) == 0 {
		return attrs
	}
	for _, attr := range e.s.Nodes[0].Attr {
		attrs[strings.ToLower(attr.Key)] = attr.Val
	}
	return attrs
}

func (e *goqueryElement) Text() string {
	return e.s.Text()
}
