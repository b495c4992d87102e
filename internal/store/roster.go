// Package store loads the combatant roster from PostgreSQL.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/battlelab/matchup/internal/models"
)

// PgPool defines the interface for PostgreSQL connection pool
type PgPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS combatants (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	hp          INT NOT NULL,
	attack      INT NOT NULL,
	defense     INT NOT NULL,
	sp_attack   INT NOT NULL,
	sp_defense  INT NOT NULL,
	speed       INT NOT NULL,
	type1       TEXT NOT NULL,
	type2       TEXT
);
CREATE TABLE IF NOT EXISTS moves (
	id        INT PRIMARY KEY,
	name      TEXT NOT NULL DEFAULT '',
	type      TEXT NOT NULL,
	category  TEXT NOT NULL,
	power     INT,
	accuracy  INT NOT NULL,
	priority  INT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS learnsets (
	combatant_id TEXT NOT NULL REFERENCES combatants(id) ON DELETE CASCADE,
	move_id      INT NOT NULL REFERENCES moves(id),
	PRIMARY KEY (combatant_id, move_id)
);`

const (
	combatantsQuery = `
		SELECT id, name, hp, attack, defense, sp_attack, sp_defense, speed, type1, type2
		FROM combatants
		ORDER BY id`

	learnsetsQuery = `
		SELECT l.combatant_id, m.id, m.name, m.type, m.category, m.power, m.accuracy, m.priority
		FROM learnsets l
		JOIN moves m ON m.id = l.move_id
		ORDER BY l.combatant_id, m.id`
)

// RosterStore reads and writes the roster tables.
type RosterStore struct {
	pg PgPool
}

func NewRosterStore(pg PgPool) *RosterStore {
	return &RosterStore{pg: pg}
}

// EnsureSchema creates the roster tables if they are missing.
func (s *RosterStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pg.Exec(ctx, schemaSQL)
	return err
}

// LoadRoster returns every combatant with its learnset, ordered by id.
// Rows are validated here so nothing downstream sees unknown types or
// out-of-range stats.
func (s *RosterStore) LoadRoster(ctx context.Context) ([]models.Combatant, error) {
	rows, err := s.pg.Query(ctx, combatantsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query combatants: %w", err)
	}
	defer rows.Close()

	var roster []models.Combatant
	index := make(map[string]int)
	for rows.Next() {
		var (
			c     models.Combatant
			type1 string
			type2 *string
		)
		if err := rows.Scan(&c.ID, &c.Name,
			&c.Stats.HP, &c.Stats.Attack, &c.Stats.Defense,
			&c.Stats.SpAttack, &c.Stats.SpDefense, &c.Stats.Speed,
			&type1, &type2,
		); err != nil {
			return nil, fmt.Errorf("failed to scan combatant: %w", err)
		}
		t1, err := models.ParseType(type1)
		if err != nil {
			return nil, fmt.Errorf("combatant %s: type1: %w", c.ID, err)
		}
		c.Types = []models.Type{t1}
		if type2 != nil && *type2 != "" {
			t2, err := models.ParseType(*type2)
			if err != nil {
				return nil, fmt.Errorf("combatant %s: type2: %w", c.ID, err)
			}
			c.Types = append(c.Types, t2)
		}
		index[c.ID] = len(roster)
		roster = append(roster, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := s.loadLearnsets(ctx, roster, index); err != nil {
		return nil, err
	}

	for i, c := range roster {
		if err := c.Validate(c.ID + "."); err != nil {
			return nil, fmt.Errorf("roster row %d: %w", i, err)
		}
	}
	return roster, nil
}

func (s *RosterStore) loadLearnsets(ctx context.Context, roster []models.Combatant, index map[string]int) error {
	rows, err := s.pg.Query(ctx, learnsetsQuery)
	if err != nil {
		return fmt.Errorf("failed to query learnsets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			owner    string
			mv       models.Move
			mvType   string
			category string
		)
		if err := rows.Scan(&owner, &mv.ID, &mv.Name, &mvType, &category, &mv.Power, &mv.Accuracy, &mv.Priority); err != nil {
			return fmt.Errorf("failed to scan learnset: %w", err)
		}
		i, ok := index[owner]
		if !ok {
			continue
		}
		if mv.Type, err = models.ParseType(mvType); err != nil {
			return fmt.Errorf("move %d: %w", mv.ID, err)
		}
		if mv.Category, err = models.ParseCategory(category); err != nil {
			return fmt.Errorf("move %d: %w", mv.ID, err)
		}
		roster[i].Moves = append(roster[i].Moves, mv)
	}
	return rows.Err()
}

// SaveCombatant upserts c, its moves and its learnset.
func (s *RosterStore) SaveCombatant(ctx context.Context, c models.Combatant) error {
	if err := c.Validate(""); err != nil {
		return err
	}
	var type2 *string
	if t := c.Secondary(); t != models.TypeNone {
		name := t.String()
		type2 = &name
	}
	_, err := s.pg.Exec(ctx, `
		INSERT INTO combatants (id, name, hp, attack, defense, sp_attack, sp_defense, speed, type1, type2)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, hp = EXCLUDED.hp, attack = EXCLUDED.attack,
			defense = EXCLUDED.defense, sp_attack = EXCLUDED.sp_attack,
			sp_defense = EXCLUDED.sp_defense, speed = EXCLUDED.speed,
			type1 = EXCLUDED.type1, type2 = EXCLUDED.type2`,
		c.ID, c.Name, c.Stats.HP, c.Stats.Attack, c.Stats.Defense,
		c.Stats.SpAttack, c.Stats.SpDefense, c.Stats.Speed,
		c.Primary().String(), type2,
	)
	if err != nil {
		return fmt.Errorf("failed to save combatant %s: %w", c.ID, err)
	}

	for _, mv := range c.Moves {
		if _, err := s.pg.Exec(ctx, `
			INSERT INTO moves (id, name, type, category, power, accuracy, priority)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING`,
			mv.ID, mv.Name, mv.Type.String(), mv.Category.String(), mv.Power, mv.Accuracy, mv.Priority,
		); err != nil {
			return fmt.Errorf("failed to save move %d: %w", mv.ID, err)
		}
		if _, err := s.pg.Exec(ctx, `
			INSERT INTO learnsets (combatant_id, move_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			c.ID, mv.ID,
		); err != nil {
			return fmt.Errorf("failed to save learnset %s/%d: %w", c.ID, mv.ID, err)
		}
	}
	return nil
}
