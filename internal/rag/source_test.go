package rag

import "testing"

func TestParseSource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		label    string
		notebook string
		section  string
		page     string
	}{
		{
			name:     "canonical label",
			label:    "Notebook: Work, Section: Meetings, Page: Weekly sync",
			notebook: "Work",
			section:  "Meetings",
			page:     "Weekly sync",
		},
		{
			name:     "compact label",
			label:    "Notebook:A,Section:B,Page:C",
			notebook: "A",
			section:  "B",
			page:     "C",
		},
		{
			name:     "comma inside page title",
			label:    "Notebook: Home, Section: Recipes, Page: Salt, pepper and oil",
			notebook: "Home",
			section:  "Recipes",
			page:     "Salt, pepper and oil",
		},
		{
			name:     "time inside page title",
			label:    "Notebook: Work, Section: Calls, Page: Standup 9:30",
			notebook: "Work",
			section:  "Calls",
			page:     "Standup 9:30",
		},
		{
			name:  "free-form label",
			label: "notes.json",
		},
		{
			name:     "missing section",
			label:    "Notebook: Work, Page: Todo",
			notebook: "Work",
			page:     "Todo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseSource(tt.label)
			if got.Notebook != tt.notebook {
				t.Errorf("Notebook = %q, want %q", got.Notebook, tt.notebook)
			}
			if got.Section != tt.section {
				t.Errorf("Section = %q, want %q", got.Section, tt.section)
			}
			if got.Page != tt.page {
				t.Errorf("Page = %q, want %q", got.Page, tt.page)
			}
		})
	}
}

func TestFormatSource_RoundTrip(t *testing.T) {
	t.Parallel()

	label := FormatSource("Work", "Meetings", "Weekly")
	if label != "Notebook: Work, Section: Meetings, Page: Weekly" {
		t.Fatalf("FormatSource = %q", label)
	}
	if got := ParseSource(label).String(); got != label {
		t.Errorf("round trip = %q, want %q", got, label)
	}
}
