package model

// Query selects stored commands for listing and searching.
type Query struct {
	Text      string // substring of the command text; empty matches all
	Tag       string // only commands carrying this tag
	Limit     int    // 0 means no limit
	Ascending bool   // oldest first
}
