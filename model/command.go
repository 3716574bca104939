package model

import "time"

type Command struct {
	ID          int64
	Name        string
	Cmd         string
	Description string
	Directory   string
	Tags        []string
	ExitCode    *int // nil when the command has never been run through cmdvault
	CreatedAt   time.Time
	LastUsedAt  *time.Time
	LastParams  string // JSON map of last-used param values
	// Literal rows are recorded executions. Their text runs as-is and is
	// not treated as a template.
	Literal bool
}

// Title is the name shown in listings, falling back to the command itself.
func (c Command) Title() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Cmd
}

// TagCount is a tag and the number of commands carrying it.
type TagCount struct {
	Name  string
	Count int
}
