package transcript

import (
	"encoding/xml"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

var markupTag = regexp.MustCompile(`<[^>]*>`)

// timedTextDoc covers both timedtext layouts: the classic
// <transcript><text start dur> and format 3 <timedtext><body><p t d>
// where times are in milliseconds.
type timedTextDoc struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Body  string `xml:",chardata"`
	} `xml:"text"`
	Paragraphs []struct {
		T     string `xml:"t,attr"`
		D     string `xml:"d,attr"`
		Inner string `xml:",innerxml"`
	} `xml:"body>p"`
}

func parseTimedText(data []byte) ([]Cue, error) {
	var doc timedTextDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse timedtext: %w", err)
	}

	cues := make([]Cue, 0, len(doc.Texts)+len(doc.Paragraphs))
	for _, t := range doc.Texts {
		text := cleanCueText(t.Body)
		if text == "" {
			continue
		}
		cues = append(cues, Cue{Text: text, Start: parseSeconds(t.Start), Duration: parseSeconds(t.Dur)})
	}
	for _, p := range doc.Paragraphs {
		text := cleanCueText(p.Inner)
		if text == "" {
			continue
		}
		cues = append(cues, Cue{Text: text, Start: parseMillis(p.T), Duration: parseMillis(p.D)})
	}
	return cues, nil
}

// cleanCueText decodes entities (YouTube double-escapes some) and drops
// formatting tags such as <i> and <font>.
func cleanCueText(raw string) string {
	text := markupTag.ReplaceAllString(raw, "")
	text = html.UnescapeString(text)
	text = markupTag.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func parseSeconds(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseMillis(v string) float64 {
	return parseSeconds(v) / 1000
}
