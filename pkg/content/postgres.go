package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xhad/booksage/internal/models"
)

// Postgres reads the hierarchy from the books, modules, chapters and
// sections tables owned by the content service. Book and module
// descriptions are not exposed as indexable text.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

const getUnitQuery = `
	SELECT 'Book', id, NULL::uuid, title, 0, '', '' FROM books WHERE id = $1
	UNION ALL
	SELECT 'Module', id, book_id, title, module_number, '', '' FROM modules WHERE id = $1
	UNION ALL
	SELECT 'Chapter', id, module_id, title, chapter_number, '', COALESCE(content, '') FROM chapters WHERE id = $1
	UNION ALL
	SELECT 'Section', id, chapter_id, COALESCE(title, ''), section_number, COALESCE(type, 'text'), COALESCE(content, '') FROM sections WHERE id = $1
	LIMIT 1`

func (r *Postgres) GetUnit(ctx context.Context, id models.ContentID) (*models.ContentUnit, error) {
	row := r.db.QueryRow(ctx, getUnitQuery, id.UUID())
	unit, err := scanUnit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: content %s", models.ErrNotFound, id)
		}
		return nil, models.DependencyError("get content unit", err)
	}
	return unit, nil
}

func childrenQuery(level models.ContentType) (string, error) {
	switch level {
	case models.Module:
		return `SELECT 'Module', id, book_id, title, module_number, '', ''
			FROM modules WHERE book_id = $1 ORDER BY module_number, id`, nil
	case models.Chapter:
		return `SELECT 'Chapter', id, module_id, title, chapter_number, '', COALESCE(content, '')
			FROM chapters WHERE module_id = $1 ORDER BY chapter_number, id`, nil
	case models.Section:
		return `SELECT 'Section', id, chapter_id, COALESCE(title, ''), section_number, COALESCE(type, 'text'), COALESCE(content, '')
			FROM sections WHERE chapter_id = $1 ORDER BY section_number, id`, nil
	}
	return "", fmt.Errorf("%w: no children at level %q", models.ErrInvalidArgument, level)
}

func (r *Postgres) GetChildren(ctx context.Context, parentID models.ContentID, level models.ContentType) ([]models.ContentUnit, error) {
	query, err := childrenQuery(level)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, parentID.UUID())
	if err != nil {
		return nil, models.DependencyError("list "+string(level)+" units", err)
	}
	defer rows.Close()

	var units []models.ContentUnit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, models.DependencyError("scan "+string(level)+" unit", err)
		}
		units = append(units, *unit)
	}
	if err := rows.Err(); err != nil {
		return nil, models.DependencyError("list "+string(level)+" units", err)
	}
	return units, nil
}

func (r *Postgres) ListBooks(ctx context.Context) ([]models.ContentUnit, error) {
	rows, err := r.db.Query(ctx, `
		SELECT 'Book', id, NULL::uuid, title, 0, '', ''
		FROM books ORDER BY created_at, title`)
	if err != nil {
		return nil, models.DependencyError("list books", err)
	}
	defer rows.Close()

	var books []models.ContentUnit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, models.DependencyError("scan book", err)
		}
		books = append(books, *unit)
	}
	if err := rows.Err(); err != nil {
		return nil, models.DependencyError("list books", err)
	}
	return books, nil
}

func scanUnit(row pgx.Row) (*models.ContentUnit, error) {
	var (
		unitType string
		id       uuid.UUID
		parentID uuid.UUID
		unit     models.ContentUnit
	)
	if err := row.Scan(&unitType, &id, &parentID, &unit.Title, &unit.Number, &unit.Kind, &unit.Text); err != nil {
		return nil, err
	}
	unit.Type = models.ContentType(unitType)
	unit.ID = models.ContentID(id)
	unit.ParentID = models.ContentID(parentID)
	return &unit, nil
}

// Import copies a book and everything below it from src into the content
// tables, replacing rows with the same ids.
func (r *Postgres) Import(ctx context.Context, src *Memory, bookID models.ContentID) error {
	book, err := src.GetUnit(ctx, bookID)
	if err != nil {
		return err
	}
	if book.Type != models.Book {
		return fmt.Errorf("%w: %s is a %s, not a book", models.ErrInvalidArgument, bookID, book.Type)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return models.DependencyError("begin import", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO books (id, title) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, updated_at = now()`,
		book.ID.UUID(), book.Title); err != nil {
		return models.DependencyError("import book", err)
	}

	if err := importChildren(ctx, tx, src, *book); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.DependencyError("commit import", err)
	}
	return nil
}

var importQueries = map[models.ContentType]string{
	models.Module: `
		INSERT INTO modules (id, book_id, title, module_number) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, module_number = EXCLUDED.module_number, updated_at = now()`,
	models.Chapter: `
		INSERT INTO chapters (id, module_id, title, chapter_number, content) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, chapter_number = EXCLUDED.chapter_number,
			content = EXCLUDED.content, updated_at = now()`,
	models.Section: `
		INSERT INTO sections (id, chapter_id, title, section_number, content, type) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, section_number = EXCLUDED.section_number,
			content = EXCLUDED.content, type = EXCLUDED.type, updated_at = now()`,
}

func importChildren(ctx context.Context, tx pgx.Tx, src *Memory, parent models.ContentUnit) error {
	level := parent.Type.Child()
	if level == "" {
		return nil
	}
	children, err := src.GetChildren(ctx, parent.ID, level)
	if err != nil {
		return err
	}

	for _, u := range children {
		args := []any{u.ID.UUID(), u.ParentID.UUID(), u.Title, u.Number}
		switch u.Type {
		case models.Chapter:
			args = append(args, u.Text)
		case models.Section:
			args = append(args, u.Text, u.Kind)
		}
		if _, err := tx.Exec(ctx, importQueries[u.Type], args...); err != nil {
			return models.DependencyError("import "+string(u.Type), err)
		}
		if err := importChildren(ctx, tx, src, u); err != nil {
			return err
		}
	}
	return nil
}
