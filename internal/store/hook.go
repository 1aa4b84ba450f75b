package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// HookEvent is a counter event a hook can be bound to.
type HookEvent string

const (
	// HookEventRep fires when a repetition completes.
	HookEventRep HookEvent = "rep"
	// HookEventReset fires when the count is reset.
	HookEventReset HookEvent = "reset"
)

// Valid reports whether e is a known event.
func (e HookEvent) Valid() bool {
	return e == HookEventRep || e == HookEventReset
}

// Hook binds a counter event to a hook executable's action.
type Hook struct {
	ID         string
	Event      HookEvent
	PluginName string
	ActionName string
	Config     json.RawMessage
	Enabled    bool
	CreatedAt  time.Time
}

// HookRepository provides CRUD operations for hook bindings.
type HookRepository struct {
	db *sql.DB
}

// Hooks returns the hook repository for this store.
func (s *Store) Hooks() *HookRepository {
	return &HookRepository{db: s.db}
}

const hookColumns = `id, event, plugin_name, action_name, config, enabled, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHook(row rowScanner) (*Hook, error) {
	h := &Hook{}
	var event, config string
	var enabled int

	if err := row.Scan(&h.ID, &event, &h.PluginName, &h.ActionName, &config, &enabled, &h.CreatedAt); err != nil {
		return nil, err
	}

	h.Event = HookEvent(event)
	h.Config = json.RawMessage(config)
	h.Enabled = enabled != 0
	return h, nil
}

// Create inserts a new hook binding.
func (r *HookRepository) Create(h *Hook) error {
	h.CreatedAt = time.Now()

	config := h.Config
	if config == nil {
		config = json.RawMessage("{}")
	}

	_, err := r.db.Exec(
		`INSERT INTO hooks (`+hookColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.ID, string(h.Event), h.PluginName, h.ActionName, string(config), h.Enabled, h.CreatedAt,
	)
	return err
}

// GetByID retrieves a hook binding by its ID.
func (r *HookRepository) GetByID(id string) (*Hook, error) {
	h, err := scanHook(r.db.QueryRow(`SELECT `+hookColumns+` FROM hooks WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return h, nil
}

// List retrieves all hook bindings, newest first.
func (r *HookRepository) List() ([]*Hook, error) {
	return r.query(`SELECT ` + hookColumns + ` FROM hooks ORDER BY created_at DESC`)
}

// ListEnabled retrieves the enabled bindings for an event, oldest first.
func (r *HookRepository) ListEnabled(event HookEvent) ([]*Hook, error) {
	return r.query(
		`SELECT `+hookColumns+` FROM hooks WHERE event = ? AND enabled = 1 ORDER BY created_at`,
		string(event),
	)
}

func (r *HookRepository) query(q string, args ...any) ([]*Hook, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hooks []*Hook
	for rows.Next() {
		h, err := scanHook(rows)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, h)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return hooks, nil
}

// Update updates an existing hook binding.
func (r *HookRepository) Update(h *Hook) error {
	config := h.Config
	if config == nil {
		config = json.RawMessage("{}")
	}

	enabled := 0
	if h.Enabled {
		enabled = 1
	}

	result, err := r.db.Exec(
		`UPDATE hooks SET event = ?, plugin_name = ?, action_name = ?, config = ?, enabled = ?
		 WHERE id = ?`,
		string(h.Event), h.PluginName, h.ActionName, string(config), enabled, h.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a hook binding by its ID.
func (r *HookRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM hooks WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
