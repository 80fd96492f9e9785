package models

import "time"

// MaxHistoryEntries caps the persisted history.
const MaxHistoryEntries = 50

// HistoryEntry is one past generation with its decoded assets.
type HistoryEntry struct {
	ID        string
	Image     *Image
	Prompt    string
	CreatedAt time.Time
	Source    *Image
}

// HistoryRecord is the compact, persisted index row of a HistoryEntry.
type HistoryRecord struct {
	ID                  string    `json:"id"`
	Prompt              string    `json:"prompt"`
	Date                time.Time `json:"date"`
	ImageFilename       string    `json:"imageFilename"`
	SourceImageFilename string    `json:"sourceImageFilename,omitempty"`
}

// AssetFilenames lists every asset the record references.
func (r HistoryRecord) AssetFilenames() []string {
	names := []string{r.ImageFilename}
	if r.SourceImageFilename != "" {
		names = append(names, r.SourceImageFilename)
	}
	return names
}
