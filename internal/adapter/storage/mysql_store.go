package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/santiago-gil/tools-tracker/internal/core/domain"
	"github.com/santiago-gil/tools-tracker/internal/port"
)

// MySQLStore keeps documents as JSON rows in a single table:
//
//	CREATE TABLE documents (
//	    collection VARCHAR(64)  NOT NULL,
//	    id         CHAR(36)     NOT NULL,
//	    doc        JSON         NOT NULL,
//	    PRIMARY KEY (collection, id)
//	);
//
// Transactions use locking reads so two concurrent read-modify-write cycles
// on the same document serialize at the row.
type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT doc FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&raw)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}
	return decodeDoc(raw)
}

func (s *MySQLStore) List(ctx context.Context, collection string) ([]port.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc FROM documents WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

func (s *MySQLStore) Query(ctx context.Context, collection, field string, op port.Op, value any) ([]port.Document, error) {
	var sqlOp string
	switch op {
	case port.OpEqual:
		sqlOp = "="
	case port.OpGreaterEqual:
		sqlOp = ">="
	case port.OpLessEqual:
		sqlOp = "<="
	default:
		return nil, fmt.Errorf("unsupported query op %q", op)
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode query value: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, doc FROM documents
		WHERE collection = ? AND JSON_EXTRACT(doc, CONCAT('$.', ?)) %s CAST(? AS JSON)`, sqlOp),
		collection, field, string(encoded))
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

func (s *MySQLStore) Add(ctx context.Context, collection string, doc map[string]any) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, doc) VALUES (?, ?, ?)`,
		collection, id, raw)
	if err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

func (s *MySQLStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx port.Txn) error {
		return tx.Update(ctx, collection, id, fields)
	})
}

func (s *MySQLStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (s *MySQLStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx port.Txn) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &mysqlTxn{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type mysqlTxn struct {
	tx *sql.Tx
}

func (t *mysqlTxn) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	raw, err := t.getRaw(ctx, collection, id)
	if err != nil || raw == nil {
		return nil, err
	}
	return decodeDoc(raw)
}

func (t *mysqlTxn) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	raw, err := t.getRaw(ctx, collection, id)
	if err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, domain.ErrNotFound)
	}

	merged, err := mergeDoc(raw, fields)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(ctx, `
		UPDATE documents SET doc = ? WHERE collection = ? AND id = ?`,
		merged, collection, id)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// getRaw takes a row lock so concurrent transactions on the same document
// serialize.
func (t *mysqlTxn) getRaw(ctx context.Context, collection, id string) ([]byte, error) {
	var raw []byte
	err := t.tx.QueryRowContext(ctx, `
		SELECT doc FROM documents WHERE collection = ? AND id = ? FOR UPDATE`,
		collection, id,
	).Scan(&raw)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}
	return raw, nil
}

func scanDocuments(rows *sql.Rows) ([]port.Document, error) {
	var results []port.Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, err
		}
		results = append(results, port.Document{ID: id, Data: doc})
	}
	return results, rows.Err()
}

func decodeDoc(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func mergeDoc(raw []byte, fields map[string]any) ([]byte, error) {
	doc, err := decodeDoc(raw)
	if err != nil {
		return nil, err
	}

	normalized, err := copyDoc(fields)
	if err != nil {
		return nil, err
	}
	for k, v := range normalized {
		doc[k] = v
	}

	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return merged, nil
}
