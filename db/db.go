package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cmdvault/model"
)

// ErrNotFound is returned when a command id does not exist.
var ErrNotFound = errors.New("command not found")

type DB struct {
	conn *sql.DB
}

// DefaultPath is ~/.cmdvault/commands.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cmdvault", "commands.db"), nil
}

// New opens (creating if needed) the database at path. An empty path uses
// DefaultPath.
func New(path string) (*DB, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}

	return db, nil
}

func (d *DB) migrate() error {
	_, err := d.conn.Exec(`
		CREATE TABLE IF NOT EXISTS commands (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL DEFAULT '',
			cmd TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			directory TEXT NOT NULL DEFAULT '',
			exit_code INTEGER,
			created_at DATETIME NOT NULL,
			last_used_at DATETIME,
			last_params TEXT NOT NULL DEFAULT '',
			literal INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);
		CREATE TABLE IF NOT EXISTS command_tags (
			command_id INTEGER NOT NULL REFERENCES commands(id) ON DELETE CASCADE,
			tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			PRIMARY KEY (command_id, tag_id)
		);
		CREATE INDEX IF NOT EXISTS idx_commands_name ON commands(name);
		CREATE INDEX IF NOT EXISTS idx_commands_cmd ON commands(cmd);
		CREATE INDEX IF NOT EXISTS idx_tags_name ON tags(name);
	`)
	if err != nil {
		return err
	}
	return d.addColumn("commands", "literal", "INTEGER NOT NULL DEFAULT 0")
}

// addColumn adds a column to databases created before it existed.
func (d *DB) addColumn(table, column, decl string) error {
	rows, err := d.conn.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			def     sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &def, &pk); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = d.conn.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

func (d *DB) Close() error {
	return d.conn.Close()
}

const selectCommands = `
	SELECT c.id, c.name, c.cmd, c.description, c.directory, c.exit_code,
		c.created_at, c.last_used_at, c.last_params, c.literal,
		(SELECT GROUP_CONCAT(t.name, ',') FROM tags t
			JOIN command_tags ct ON ct.tag_id = t.id
			WHERE ct.command_id = c.id)
	FROM commands c`

type scanner interface {
	Scan(dest ...any) error
}

func scanCommand(row scanner) (model.Command, error) {
	var c model.Command
	var exitCode sql.NullInt64
	var lastUsed sql.NullTime
	var tags sql.NullString
	err := row.Scan(&c.ID, &c.Name, &c.Cmd, &c.Description, &c.Directory, &exitCode,
		&c.CreatedAt, &lastUsed, &c.LastParams, &c.Literal, &tags)
	if err != nil {
		return c, err
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		c.ExitCode = &code
	}
	if lastUsed.Valid {
		c.LastUsedAt = &lastUsed.Time
	}
	if tags.Valid {
		c.Tags = strings.Split(tags.String, ",")
		sort.Strings(c.Tags)
	}
	return c, nil
}

// List returns commands matching q, newest first unless q.Ascending.
func (d *DB) List(q model.Query) ([]model.Command, error) {
	var where []string
	var args []any
	if q.Text != "" {
		where = append(where, `c.cmd LIKE '%' || ? || '%'`)
		args = append(args, q.Text)
	}
	if q.Tag != "" {
		where = append(where, `EXISTS (SELECT 1 FROM command_tags ct
			JOIN tags t ON t.id = ct.tag_id
			WHERE ct.command_id = c.id AND t.name = ?)`)
		args = append(args, q.Tag)
	}

	query := selectCommands
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if q.Ascending {
		query += " ORDER BY c.created_at ASC, c.id ASC"
	} else {
		query += " ORDER BY c.created_at DESC, c.id DESC"
	}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commands []model.Command
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		commands = append(commands, c)
	}
	return commands, rows.Err()
}

// Search returns commands whose text contains query.
func (d *DB) Search(query string, limit int) ([]model.Command, error) {
	return d.List(model.Query{Text: query, Limit: limit})
}

// SearchByTag returns commands carrying tag.
func (d *DB) SearchByTag(tag string, limit int) ([]model.Command, error) {
	return d.List(model.Query{Tag: tag, Limit: limit})
}

func (d *DB) Get(id int64) (*model.Command, error) {
	c, err := scanCommand(d.conn.QueryRow(selectCommands+" WHERE c.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Add stores a new command with its tags.
func (d *DB) Add(c model.Command) (int64, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var exitCode any
	if c.ExitCode != nil {
		exitCode = *c.ExitCode
	}
	result, err := tx.Exec(
		`INSERT INTO commands (name, cmd, description, directory, exit_code, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.Name, c.Cmd, c.Description, c.Directory, exitCode, time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := linkTags(tx, id, c.Tags); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// Save records an executed command. A command with the same text is
// refreshed in place (exit code, directory, last use, merged tags) rather
// than duplicated. New rows are literal: they run verbatim and are never
// parsed for placeholders again.
func (d *DB) Save(cmd string, exitCode int, dir string, tags []string) (int64, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var id int64
	err = tx.QueryRow(`SELECT id FROM commands WHERE TRIM(cmd) = ? ORDER BY id LIMIT 1`,
		strings.TrimSpace(cmd)).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		result, err := tx.Exec(
			`INSERT INTO commands (cmd, directory, exit_code, created_at, last_used_at, literal)
			VALUES (?, ?, ?, ?, ?, 1)`,
			cmd, dir, exitCode, now, now,
		)
		if err != nil {
			return 0, err
		}
		if id, err = result.LastInsertId(); err != nil {
			return 0, err
		}
	case err != nil:
		return 0, err
	default:
		_, err = tx.Exec(
			`UPDATE commands SET exit_code = ?, directory = ?, last_used_at = ? WHERE id = ?`,
			exitCode, dir, now, id,
		)
		if err != nil {
			return 0, err
		}
	}

	if err := linkTags(tx, id, tags); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// Update replaces the editable fields and the tag set of a command.
func (d *DB) Update(c model.Command) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE commands SET name = ?, cmd = ?, description = ?, directory = ? WHERE id = ?`,
		c.Name, c.Cmd, c.Description, c.Directory, c.ID,
	)
	if err != nil {
		return err
	}
	if err := requireRow(result); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM command_tags WHERE command_id = ?`, c.ID); err != nil {
		return err
	}
	if err := linkTags(tx, c.ID, c.Tags); err != nil {
		return err
	}
	if err := pruneTags(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a command and any tags no longer in use.
func (d *DB) Delete(id int64) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM command_tags WHERE command_id = ?`, id); err != nil {
		return err
	}
	result, err := tx.Exec(`DELETE FROM commands WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := requireRow(result); err != nil {
		return err
	}
	if err := pruneTags(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// AddTags attaches tags to an existing command.
func (d *DB) AddTags(id int64, tags []string) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM commands WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	if err := linkTags(tx, id, tags); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveTag detaches tag from a command.
func (d *DB) RemoveTag(id int64, tag string) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`DELETE FROM command_tags
		WHERE command_id = ? AND tag_id = (SELECT id FROM tags WHERE name = ?)`,
		id, strings.TrimSpace(tag),
	)
	if err != nil {
		return err
	}
	if err := pruneTags(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ListTags returns every tag with its usage count, most used first.
func (d *DB) ListTags() ([]model.TagCount, error) {
	rows, err := d.conn.Query(`
		SELECT t.name, COUNT(ct.command_id) AS count
		FROM tags t
		LEFT JOIN command_tags ct ON ct.tag_id = t.id
		GROUP BY t.id, t.name
		ORDER BY count DESC, t.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []model.TagCount
	for rows.Next() {
		var tc model.TagCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, err
		}
		tags = append(tags, tc)
	}
	return tags, rows.Err()
}

// UpdateLastUsed stamps the command as used and remembers the parameter
// values it was run with.
func (d *DB) UpdateLastUsed(id int64, params map[string]string) error {
	lastParams := ""
	if len(params) > 0 {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		lastParams = string(b)
	}
	_, err := d.conn.Exec(
		`UPDATE commands SET last_used_at = ?, last_params = ? WHERE id = ?`,
		time.Now().UTC(), lastParams, id,
	)
	return err
}

// IsDuplicate checks if a command with the same cmd string exists
func (d *DB) IsDuplicate(cmd string, excludeID int64) (bool, error) {
	normalized := strings.TrimSpace(cmd)
	var count int
	err := d.conn.QueryRow(
		`SELECT COUNT(*) FROM commands WHERE TRIM(cmd) = ? AND id != ?`,
		normalized, excludeID,
	).Scan(&count)
	return count > 0, err
}

// LastParams decodes the remembered parameter values of c.
func LastParams(c model.Command) map[string]string {
	if c.LastParams == "" {
		return nil
	}
	var params map[string]string
	if err := json.Unmarshal([]byte(c.LastParams), &params); err != nil {
		return nil
	}
	return params
}

func linkTags(tx *sql.Tx, commandID int64, tags []string) error {
	for _, tag := range NormalizeTags(tags) {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO tags (name) VALUES (?)`, tag); err != nil {
			return err
		}
		_, err := tx.Exec(
			`INSERT OR IGNORE INTO command_tags (command_id, tag_id)
			SELECT ?, id FROM tags WHERE name = ?`,
			commandID, tag,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func pruneTags(tx *sql.Tx) error {
	_, err := tx.Exec(`DELETE FROM tags WHERE id NOT IN (SELECT DISTINCT tag_id FROM command_tags)`)
	return err
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// NormalizeTags trims, splits on commas and de-duplicates tags, keeping
// their first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, raw := range tags {
		for _, tag := range strings.Split(raw, ",") {
			tag = strings.TrimSpace(tag)
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			out = append(out, tag)
		}
	}
	return out
}
