package service

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/preferrrr/blocker-server/model"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore is a durable Store backed by SQLite.
//
// The connection pool is limited to a single connection and every transaction
// is opened immediately (_txlock=immediate), so all writers are serialized.
// That is a stronger guarantee than the per-contract serialization Store
// requires, and it is what makes the all-signed quorum check race-free.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore creates or opens the database at the given path and applies
// the schema. Safe to call on an existing database.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_txlock=immediate", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY errors under concurrent sign requests
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InTx runs fn inside a database transaction. The contractID parameter is
// part of the Store interface; with a single writer connection the
// serialization already covers every contract.
func (s *SQLiteStore) InTx(ctx context.Context, contractID string, fn func(tx Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&sqliteTx{tx: dbTx}); err != nil {
		dbTx.Rollback()
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetContract(ctx context.Context, id string) (*model.Contract, error) {
	return scanContract(s.db.QueryRowContext(ctx, `
		SELECT id, author_email, title, content, state, ledger_tx_id, created_at, updated_at
		FROM contracts
		WHERE id = ?
	`, id))
}

func (s *SQLiteStore) ListContractsByAuthor(ctx context.Context, email, state string) ([]*model.Contract, error) {
	query := `
		SELECT id, author_email, title, content, state, ledger_tx_id, created_at, updated_at
		FROM contracts
		WHERE author_email = ?
	`
	args := []any{email}
	if state != "" {
		query += " AND state = ?"
		args = append(args, state)
	}
	query += " ORDER BY updated_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contracts: %w", err)
	}
	defer rows.Close()

	result := []*model.Contract{}
	for rows.Next() {
		var c model.Contract
		if err := rows.Scan(&c.ID, &c.AuthorEmail, &c.Title, &c.Content, &c.State, &c.LedgerTxID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		result = append(result, &c)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) ListSigns(ctx context.Context, contractID string) ([]*model.AgreementSign, error) {
	return querySigns(ctx, s.db, contractID)
}

func (s *SQLiteStore) ListCancelSigns(ctx context.Context, contractID string) ([]*model.CancelSign, error) {
	return queryCancelSigns(ctx, s.db, contractID)
}

// sqliteTx implements Tx against a live database transaction
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetContract(id string) (*model.Contract, error) {
	return scanContract(t.tx.QueryRow(`
		SELECT id, author_email, title, content, state, ledger_tx_id, created_at, updated_at
		FROM contracts
		WHERE id = ?
	`, id))
}

func (t *sqliteTx) SaveContract(c *model.Contract) error {
	c.UpdatedAt = time.Now()
	_, err := t.tx.Exec(`
		INSERT INTO contracts (id, author_email, title, content, state, ledger_tx_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			state = excluded.state,
			ledger_tx_id = excluded.ledger_tx_id,
			updated_at = excluded.updated_at
	`, c.ID, c.AuthorEmail, c.Title, c.Content, c.State, c.LedgerTxID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save contract: %w", err)
	}
	return nil
}

func (t *sqliteTx) DeleteContract(id string) error {
	_, err := t.tx.Exec(`DELETE FROM contracts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete contract: %w", err)
	}
	return nil
}

func (t *sqliteTx) SignsExist(contractID string) (bool, error) {
	var n int
	if err := t.tx.QueryRow(`SELECT COUNT(*) FROM agreement_signs WHERE contract_id = ?`, contractID).Scan(&n); err != nil {
		return false, fmt.Errorf("count signs: %w", err)
	}
	return n > 0, nil
}

func (t *sqliteTx) ListSigns(contractID string) ([]*model.AgreementSign, error) {
	return querySigns(context.Background(), t.tx, contractID)
}

func (t *sqliteTx) SaveSigns(signs []*model.AgreementSign) error {
	for _, s := range signs {
		if _, err := t.tx.Exec(`
			INSERT INTO agreement_signs (contract_id, email, state) VALUES (?, ?, ?)
		`, s.ContractID, s.Email, s.State); err != nil {
			return fmt.Errorf("save sign: %w", err)
		}
	}
	return nil
}

func (t *sqliteTx) UpdateSign(sign *model.AgreementSign) error {
	res, err := t.tx.Exec(`
		UPDATE agreement_signs SET state = ? WHERE contract_id = ? AND email = ?
	`, sign.State, sign.ContractID, sign.Email)
	if err != nil {
		return fmt.Errorf("update sign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NewNotFound("sign record not found: " + sign.ContractID + ", " + sign.Email)
	}
	return nil
}

func (t *sqliteTx) DeleteSigns(contractID string) error {
	_, err := t.tx.Exec(`DELETE FROM agreement_signs WHERE contract_id = ?`, contractID)
	if err != nil {
		return fmt.Errorf("delete signs: %w", err)
	}
	return nil
}

func (t *sqliteTx) CancelSignsExist(contractID string) (bool, error) {
	var n int
	if err := t.tx.QueryRow(`SELECT COUNT(*) FROM cancel_signs WHERE contract_id = ?`, contractID).Scan(&n); err != nil {
		return false, fmt.Errorf("count cancel signs: %w", err)
	}
	return n > 0, nil
}

func (t *sqliteTx) ListCancelSigns(contractID string) ([]*model.CancelSign, error) {
	return queryCancelSigns(context.Background(), t.tx, contractID)
}

func (t *sqliteTx) SaveCancelSigns(signs []*model.CancelSign) error {
	for _, s := range signs {
		if _, err := t.tx.Exec(`
			INSERT INTO cancel_signs (contract_id, email, state) VALUES (?, ?, ?)
		`, s.ContractID, s.Email, s.State); err != nil {
			return fmt.Errorf("save cancel sign: %w", err)
		}
	}
	return nil
}

func (t *sqliteTx) UpdateCancelSign(sign *model.CancelSign) error {
	res, err := t.tx.Exec(`
		UPDATE cancel_signs SET state = ? WHERE contract_id = ? AND email = ?
	`, sign.State, sign.ContractID, sign.Email)
	if err != nil {
		return fmt.Errorf("update cancel sign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NewNotFound("cancel sign record not found: " + sign.ContractID + ", " + sign.Email)
	}
	return nil
}

func (t *sqliteTx) DeleteCancelSigns(contractID string) error {
	_, err := t.tx.Exec(`DELETE FROM cancel_signs WHERE contract_id = ?`, contractID)
	if err != nil {
		return fmt.Errorf("delete cancel signs: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanContract(row *sql.Row) (*model.Contract, error) {
	var c model.Contract
	err := row.Scan(&c.ID, &c.AuthorEmail, &c.Title, &c.Content, &c.State, &c.LedgerTxID, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan contract: %w", err)
	}
	return &c, nil
}

func querySigns(ctx context.Context, q querier, contractID string) ([]*model.AgreementSign, error) {
	// rowid order preserves creation order: the proposer's record comes first
	rows, err := q.QueryContext(ctx, `
		SELECT contract_id, email, state
		FROM agreement_signs
		WHERE contract_id = ?
		ORDER BY rowid ASC
	`, contractID)
	if err != nil {
		return nil, fmt.Errorf("query signs: %w", err)
	}
	defer rows.Close()

	var signs []*model.AgreementSign
	for rows.Next() {
		var s model.AgreementSign
		if err := rows.Scan(&s.ContractID, &s.Email, &s.State); err != nil {
			return nil, fmt.Errorf("scan sign: %w", err)
		}
		signs = append(signs, &s)
	}
	return signs, rows.Err()
}

func queryCancelSigns(ctx context.Context, q querier, contractID string) ([]*model.CancelSign, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT contract_id, email, state
		FROM cancel_signs
		WHERE contract_id = ?
		ORDER BY rowid ASC
	`, contractID)
	if err != nil {
		return nil, fmt.Errorf("query cancel signs: %w", err)
	}
	defer rows.Close()

	var signs []*model.CancelSign
	for rows.Next() {
		var s model.CancelSign
		if err := rows.Scan(&s.ContractID, &s.Email, &s.State); err != nil {
			return nil, fmt.Errorf("scan cancel sign: %w", err)
		}
		signs = append(signs, &s)
	}
	return signs, rows.Err()
}
