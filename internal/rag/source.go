package rag

import (
	"fmt"
	"strings"
)

// SourceLabel is the parsed form of a notebook provenance label.
type SourceLabel struct {
	// Notebook is the notebook display name.
	Notebook string
	// Section is the section display name.
	Section string
	// Page is the page title.
	Page string
}

// FormatSource builds the canonical label
// "Notebook: <notebook>, Section: <section>, Page: <page>".
func FormatSource(notebook, section, page string) string {
	return fmt.Sprintf("Notebook: %s, Section: %s, Page: %s", notebook, section, page)
}

// String returns the canonical label form.
func (l SourceLabel) String() string {
	return FormatSource(l.Notebook, l.Section, l.Page)
}

// ParseSource is best-effort: it accepts the canonical form as well as
// compact variants such as "Notebook:A,Section:B,Page:C". Unknown keys are
// ignored. Because names may themselves contain commas, a segment without a
// recognised key is appended to the preceding field.
func ParseSource(label string) SourceLabel {
	var l SourceLabel
	var last *string

	for _, part := range strings.Split(label, ",") {
		key, value, ok := strings.Cut(part, ":")
		var field *string
		if ok {
			switch strings.ToLower(strings.TrimSpace(key)) {
			case "notebook":
				field = &l.Notebook
			case "section":
				field = &l.Section
			case "page":
				field = &l.Page
			}
		}
		if field == nil {
			if last != nil {
				*last += "," + part
			}
			continue
		}
		*field = strings.TrimSpace(value)
		last = field
	}

	l.Notebook = strings.TrimSpace(l.Notebook)
	l.Section = strings.TrimSpace(l.Section)
	l.Page = strings.TrimSpace(l.Page)
	return l
}
