package wheel

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/net/html"
)

// Media types served for a generated per-package index page. The JSON form
// follows simple-API v1; HTML is the classic index page older clients parse.
const (
	IndexContentTypeHTML = "text/html; charset=utf-8"
	IndexContentTypeJSON = "application/vnd.pypi.simple.v1+json"
)

const repositoryVersion = "1.0"

// IndexEntry is one downloadable file row on a generated index page. URL is
// the href target; SHA256 (hex) is appended as a hash fragment / hashes
// entry when present.
type IndexEntry struct {
	Filename string
	URL      string
	SHA256   string
}

// ArtifactEntry describes a synthesized artifact as an index row linking to
// its filename relative to the index page itself.
func ArtifactEntry(artifact *Artifact) IndexEntry {
	return IndexEntry{
		Filename: artifact.Filename,
		URL:      artifact.Filename,
		SHA256:   artifact.SHA256,
	}
}

func elem(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag, Attr: attrs}
}

func text(value string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: value}
}

func attr(key, value string) html.Attribute {
	return html.Attribute{Key: key, Val: value}
}

// IndexHTML renders the index page for a package. The document is built as a
// node tree and rendered, which keeps hrefs and names escaped no matter what
// the entries contain.
func IndexHTML(name string, entries []IndexEntry) ([]byte, error) {
	title := fmt.Sprintf("Links for %s", name)

	head := elem("head")
	head.AppendChild(elem("meta", attr("name", "pypi:repository-version"), attr("content", repositoryVersion)))
	titleNode := elem("title")
	titleNode.AppendChild(text(title))
	head.AppendChild(titleNode)

	body := elem("body")
	heading := elem("h1")
	heading.AppendChild(text(title))
	body.AppendChild(heading)
	body.AppendChild(text("\n"))
	for _, entry := range entries {
		href := entry.URL
		if entry.SHA256 != "" {
			href += "#sha256=" + entry.SHA256
		}
		anchor := elem("a", attr("href", href))
		anchor.AppendChild(text(entry.Filename))
		body.AppendChild(anchor)
		body.AppendChild(elem("br"))
		body.AppendChild(text("\n"))
	}

	root := elem("html")
	root.AppendChild(head)
	root.AppendChild(body)
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	doc.AppendChild(root)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("wheel: render index for %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

type indexDocument struct {
	Meta  indexMeta   `json:"meta"`
	Name  string      `json:"name"`
	Files []indexFile `json:"files"`
}

type indexMeta struct {
	APIVersion string `json:"api-version"`
}

type indexFile struct {
	Filename string            `json:"filename"`
	URL      string            `json:"url"`
	Hashes   map[string]string `json:"hashes"`
}

// IndexJSON renders the simple-API v1 JSON form of the same index page.
func IndexJSON(name string, entries []IndexEntry) ([]byte, error) {
	doc := indexDocument{
		Meta:  indexMeta{APIVersion: repositoryVersion},
		Name:  name,
		Files: make([]indexFile, 0, len(entries)),
	}
	for _, entry := range entries {
		file := indexFile{
			Filename: entry.Filename,
			URL:      entry.URL,
			Hashes:   map[string]string{},
		}
		if entry.SHA256 != "" {
			file.Hashes["sha256"] = entry.SHA256
		}
		doc.Files = append(doc.Files, file)
	}
	return json.Marshal(doc)
}
