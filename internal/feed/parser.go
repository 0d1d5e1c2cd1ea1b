package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// Entry is one syndication entry after boundary validation, shared between
// the Atom and RSS paths.
type Entry struct {
	ID        string
	Title     string
	Link      string
	Summary   string
	Published time.Time
}

// Atom and RSS boundary payloads. Parsed strictly into explicit structs so
// malformed documents surface as a parse error at the boundary rather than
// as missing-field faults deeper in the pipeline.

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string     `xml:"id"`
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	GUID        string `xml:"guid"`
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// Parse decodes an Atom or RSS 2.0 document into entries, newest first as
// published by the feed. An undecodable document or an unknown root element
// is a malformed-upstream error; the caller skips the feed for this cycle.
func Parse(data []byte) ([]Entry, error) {
	root, err := rootElement(data)
	if err != nil {
		return nil, err
	}

	switch root {
	case "feed":
		var doc atomFeed
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse atom feed: %w", err)
		}
		return fromAtom(doc), nil
	case "rss":
		var doc rssFeed
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse rss feed: %w", err)
		}
		return fromRSS(doc), nil
	default:
		return nil, fmt.Errorf("unsupported feed root element %q", root)
	}
}

func rootElement(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("read feed document: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

func fromAtom(doc atomFeed) []Entry {
	entries := make([]Entry, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		summary := e.Summary
		if summary == "" {
			summary = e.Content
		}
		entry := Entry{
			ID:        strings.TrimSpace(e.ID),
			Title:     strings.TrimSpace(e.Title),
			Link:      atomHref(e.Links),
			Summary:   strings.TrimSpace(summary),
			Published: parseTime(e.Published, e.Updated),
		}
		if entry.ID == "" {
			entry.ID = entry.Link
		}
		if entry.ID == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func atomHref(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "" || l.Rel == "alternate" {
			return strings.TrimSpace(l.Href)
		}
	}
	if len(links) > 0 {
		return strings.TrimSpace(links[0].Href)
	}
	return ""
}

func fromRSS(doc rssFeed) []Entry {
	entries := make([]Entry, 0, len(doc.Channel.Items))
	for _, it := range doc.Channel.Items {
		entry := Entry{
			ID:        strings.TrimSpace(it.GUID),
			Title:     strings.TrimSpace(it.Title),
			Link:      strings.TrimSpace(it.Link),
			Summary:   strings.TrimSpace(it.Description),
			Published: parseTime(it.PubDate),
		}
		if entry.ID == "" {
			entry.ID = entry.Link
		}
		if entry.ID == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

var timeLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
}

func parseTime(candidates ...string) time.Time {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, c); err == nil {
				return ts.UTC()
			}
		}
	}
	return time.Time{}
}
