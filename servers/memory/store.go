package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Entity is a named node in the knowledge base with free-form observations
// attached to it.
type Entity struct {
	Name         string   `json:"name"`
	EntityType   string   `json:"entityType"`
	Observations []string `json:"observations"`
}

// Store persists entities in a SQLite database. Observations are stored as a
// JSON array alongside the entity row.
type Store struct {
	db *sql.DB
}

const createEntitiesTable = `
CREATE TABLE IF NOT EXISTS entities (
	name TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	observations TEXT NOT NULL DEFAULT '[]',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// NewStore opens (creating if needed) the knowledge base at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory db: %w", err)
	}

	if _, err := db.Exec(createEntitiesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate memory db: %w", err)
	}

	return &Store{db: db}, nil
}

// CreateEntity inserts a new entity. It fails if an entity with the same name
// already exists.
func (s *Store) CreateEntity(e Entity) error {
	obs := e.Observations
	if obs == nil {
		obs = []string{}
	}
	obsBs, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("failed to marshal observations: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO entities (name, entity_type, observations, updated_at) VALUES (?, ?, ?, ?)`,
		e.Name, e.EntityType, string(obsBs), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create entity %s: %w", e.Name, err)
	}
	return nil
}

// GetEntity returns the entity with the given name, reporting whether it
// exists.
func (s *Store) GetEntity(name string) (Entity, bool, error) {
	var entityType, observations string
	err := s.db.QueryRow(
		`SELECT entity_type, observations FROM entities WHERE name = ?`, name,
	).Scan(&entityType, &observations)
	if err == sql.ErrNoRows {
		return Entity{}, false, nil
	}
	if err != nil {
		return Entity{}, false, fmt.Errorf("failed to read entity %s: %w", name, err)
	}

	e := Entity{Name: name, EntityType: entityType}
	if err := json.Unmarshal([]byte(observations), &e.Observations); err != nil {
		return Entity{}, false, fmt.Errorf("failed to unmarshal observations for %s: %w", name, err)
	}
	return e, true, nil
}

// UpdateObservations replaces the observation list of an existing entity.
func (s *Store) UpdateObservations(name string, observations []string) error {
	if observations == nil {
		observations = []string{}
	}
	obsBs, err := json.Marshal(observations)
	if err != nil {
		return fmt.Errorf("failed to marshal observations: %w", err)
	}

	res, err := s.db.Exec(
		`UPDATE entities SET observations = ?, updated_at = ? WHERE name = ?`,
		string(obsBs), time.Now().UTC(), name,
	)
	if err != nil {
		return fmt.Errorf("failed to update entity %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update entity %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("entity %s does not exist", name)
	}
	return nil
}

// DeleteEntity removes an entity. Deleting a missing entity is not an error.
func (s *Store) DeleteEntity(name string) error {
	if _, err := s.db.Exec(`DELETE FROM entities WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete entity %s: %w", name, err)
	}
	return nil
}

// ListEntities returns all entities ordered by name.
func (s *Store) ListEntities() ([]Entity, error) {
	rows, err := s.db.Query(`SELECT name, entity_type, observations FROM entities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		var observations string
		if err := rows.Scan(&e.Name, &e.EntityType, &observations); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		if err := json.Unmarshal([]byte(observations), &e.Observations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal observations for %s: %w", e.Name, err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	return entities, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
