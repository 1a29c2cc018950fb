package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"stash/internal/backend"
)

var _ backend.Documents = (*Store)(nil)

// ListDocuments runs queries against one collection. Total counts every
// match regardless of limit and offset.
func (s *Store) ListDocuments(ctx context.Context, collection string, queries []backend.Query) (backend.DocumentList, error) {
	if err := s.checkCollection(collection); err != nil {
		return backend.DocumentList{}, err
	}
	q, err := buildDocumentQuery(collection, queries)
	if err != nil {
		return backend.DocumentList{}, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx, q.countSQL, q.countArgs...).Scan(&total); err != nil {
		return backend.DocumentList{}, fmt.Errorf("count documents: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, q.selectSQL, q.selectArgs...)
	if err != nil {
		return backend.DocumentList{}, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	list := backend.DocumentList{Total: total, Documents: make([]backend.Document, 0)}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return backend.DocumentList{}, err
		}
		list.Documents = append(list.Documents, doc)
	}
	if err := rows.Err(); err != nil {
		return backend.DocumentList{}, err
	}
	return list, nil
}

// GetDocument returns one document or backend.ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, collection, id string) (backend.Document, error) {
	if err := s.checkCollection(collection); err != nil {
		return backend.Document{}, err
	}
	row := s.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE collection = ? AND id = ?",
		collection, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return backend.Document{}, fmt.Errorf("%w: %s/%s", backend.ErrNotFound, collection, id)
	}
	return doc, err
}

// CreateDocument inserts a document. An empty id is replaced by a fresh one.
func (s *Store) CreateDocument(ctx context.Context, collection, id string, fields map[string]any) (backend.Document, error) {
	if err := s.checkCollection(collection); err != nil {
		return backend.Document{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = NewID()
	}
	if !validID(id) {
		return backend.Document{}, fmt.Errorf("invalid document id %q", id)
	}
	if err := validateFields(fields); err != nil {
		return backend.Document{}, err
	}
	data, err := json.Marshal(nonNilFields(fields))
	if err != nil {
		return backend.Document{}, fmt.Errorf("encode document: %w", err)
	}

	now := s.now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, collection, id, string(data), dbFormatTime(now), dbFormatTime(now))
	if isUniqueViolation(err) {
		return backend.Document{}, fmt.Errorf("%w: %s/%s", backend.ErrConflict, collection, id)
	}
	if err != nil {
		return backend.Document{}, fmt.Errorf("create document: %w", err)
	}

	decoded, err := decodeFields(string(data))
	if err != nil {
		return backend.Document{}, err
	}
	return backend.Document{ID: id, CreatedAt: now, UpdatedAt: now, Fields: decoded}, nil
}

// UpdateDocument merges fields into an existing document.
func (s *Store) UpdateDocument(ctx context.Context, collection, id string, fields map[string]any) (backend.Document, error) {
	if err := s.checkCollection(collection); err != nil {
		return backend.Document{}, err
	}
	if err := validateFields(fields); err != nil {
		return backend.Document{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return backend.Document{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE collection = ? AND id = ?",
		collection, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return backend.Document{}, fmt.Errorf("%w: %s/%s", backend.ErrNotFound, collection, id)
	}
	if err != nil {
		return backend.Document{}, err
	}

	for k, v := range fields {
		doc.Fields[k] = v
	}
	data, err := json.Marshal(doc.Fields)
	if err != nil {
		return backend.Document{}, fmt.Errorf("encode document: %w", err)
	}

	now := s.now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET data = ?, updated_at = ?
		WHERE collection = ? AND id = ?
	`, string(data), dbFormatTime(now), collection, id); err != nil {
		return backend.Document{}, fmt.Errorf("update document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return backend.Document{}, err
	}

	decoded, err := decodeFields(string(data))
	if err != nil {
		return backend.Document{}, err
	}
	doc.Fields = decoded
	doc.UpdatedAt = now
	return doc, nil
}

// DeleteDocument removes one document or returns backend.ErrNotFound.
func (s *Store) DeleteDocument(ctx context.Context, collection, id string) error {
	if err := s.checkCollection(collection); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE collection = ? AND id = ?", collection, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s/%s", backend.ErrNotFound, collection, id)
	}
	return nil
}

// CollectionCounts returns the number of documents per collection.
func (s *Store) CollectionCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT collection, COUNT(*) FROM documents GROUP BY collection")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

func (s *Store) checkCollection(collection string) error {
	if strings.TrimSpace(collection) == "" {
		return fmt.Errorf("%w: empty id", backend.ErrUnknownCollection)
	}
	if s.collections == nil {
		return nil
	}
	if _, ok := s.collections[collection]; !ok {
		return fmt.Errorf("%w: %s", backend.ErrUnknownCollection, collection)
	}
	return nil
}

// validateFields rejects keys that collide with system attributes or
// cannot be addressed by queries.
func validateFields(fields map[string]any) error {
	for k := range fields {
		if _, ok := systemAttributes[k]; ok {
			return fmt.Errorf("field %q is reserved", k)
		}
		if !attributePattern.MatchString(k) {
			return fmt.Errorf("invalid field name %q", k)
		}
	}
	return nil
}

func nonNilFields(fields map[string]any) map[string]any {
	if fields == nil {
		return map[string]any{}
	}
	return fields
}

func decodeFields(data string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	fields := make(map[string]any)
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return fields, nil
}

func scanDocument(scanner interface {
	Scan(dest ...any) error
}) (backend.Document, error) {
	var (
		doc       backend.Document
		data      string
		createdAt string
		updatedAt string
	)
	if err := scanner.Scan(&doc.ID, &data, &createdAt, &updatedAt); err != nil {
		return backend.Document{}, err
	}
	fields, err := decodeFields(data)
	if err != nil {
		return backend.Document{}, err
	}
	doc.Fields = fields
	if doc.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return backend.Document{}, err
	}
	if doc.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return backend.Document{}, err
	}
	return doc, nil
}
