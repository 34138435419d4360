package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ruteri/casper-member-portal/interfaces"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is an AccountStore backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
	pgQueries
}

// NewPostgresStore connects to databaseURL and verifies the connection.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &PostgresStore{pool: pool, pgQueries: pgQueries{q: pool}}, nil
}

// Migrate creates missing tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Available pings the database.
func (s *PostgresStore) Available(ctx context.Context) bool {
	return s.pool.Ping(ctx) == nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// RunInTx runs fn inside a database transaction holding a row lock on the
// account. The transaction commits only if fn returns nil.
func (s *PostgresStore) RunInTx(ctx context.Context, id interfaces.AccountID, fn func(ctx context.Context, store interfaces.AccountStore) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", interfaces.ErrPersistence, err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var locked interfaces.AccountID
	err = tx.QueryRow(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return interfaces.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: lock account: %v", interfaces.ErrPersistence, err)
	}

	if err = fn(ctx, &pgQueries{q: tx}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", interfaces.ErrPersistence, err)
	}
	return nil
}

type pgQueries struct {
	q querier
}

func writeErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s: duplicate value", interfaces.ErrValidation, op)
	}
	return fmt.Errorf("%w: %s: %v", interfaces.ErrPersistence, op, err)
}

func readErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return interfaces.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

const selectAccount = `
	SELECT id, email, email_verified_at, password_hash, first_name, last_name,
	       type, member_status, signature_request_id, hellosign_form, letter_file,
	       public_address_node, message_content, signed_file, node_verified_at,
	       kyc_verified_at, created_at, updated_at
	FROM accounts`

func scanAccount(row pgx.Row) (*interfaces.Account, error) {
	var a interfaces.Account
	var accountType, status string
	err := row.Scan(
		&a.ID, &a.Email, &a.EmailVerifiedAt, &a.PasswordHash, &a.FirstName, &a.LastName,
		&accountType, &status, &a.SignatureRequestID, &a.HellosignForm, &a.LetterFile,
		&a.PublicAddressNode, &a.MessageContent, &a.SignedFile, &a.NodeVerifiedAt,
		&a.KYCVerifiedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Type = interfaces.AccountType(accountType)
	a.MemberStatus = interfaces.MemberStatus(status)
	return &a, nil
}

func (p *pgQueries) GetAccount(ctx context.Context, id interfaces.AccountID) (*interfaces.Account, error) {
	a, err := scanAccount(p.q.QueryRow(ctx, selectAccount+` WHERE id = $1`, id))
	if err != nil {
		return nil, readErr("get account", err)
	}
	return a, nil
}

func (p *pgQueries) GetAccountByEmail(ctx context.Context, email string) (*interfaces.Account, error) {
	a, err := scanAccount(p.q.QueryRow(ctx, selectAccount+` WHERE email = $1`, normalizeEmail(email)))
	if err != nil {
		return nil, readErr("get account by email", err)
	}
	return a, nil
}

func (p *pgQueries) SaveAccount(ctx context.Context, a *interfaces.Account) error {
	_, err := p.q.Exec(ctx, `
		INSERT INTO accounts (id, email, email_verified_at, password_hash, first_name, last_name,
		                      type, member_status, signature_request_id, hellosign_form, letter_file,
		                      public_address_node, message_content, signed_file, node_verified_at,
		                      kyc_verified_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
		    email = EXCLUDED.email,
		    email_verified_at = EXCLUDED.email_verified_at,
		    password_hash = EXCLUDED.password_hash,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    type = EXCLUDED.type,
		    member_status = EXCLUDED.member_status,
		    signature_request_id = EXCLUDED.signature_request_id,
		    hellosign_form = EXCLUDED.hellosign_form,
		    letter_file = EXCLUDED.letter_file,
		    public_address_node = EXCLUDED.public_address_node,
		    message_content = EXCLUDED.message_content,
		    signed_file = EXCLUDED.signed_file,
		    node_verified_at = EXCLUDED.node_verified_at,
		    kyc_verified_at = EXCLUDED.kyc_verified_at,
		    updated_at = EXCLUDED.updated_at
	`,
		a.ID, normalizeEmail(a.Email), a.EmailVerifiedAt, a.PasswordHash, a.FirstName, a.LastName,
		string(a.Type), string(a.MemberStatus), a.SignatureRequestID, a.HellosignForm, a.LetterFile,
		a.PublicAddressNode, a.MessageContent, a.SignedFile, a.NodeVerifiedAt,
		a.KYCVerifiedAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return writeErr("save account", err)
	}
	return nil
}

func (p *pgQueries) GetProfile(ctx context.Context, userID interfaces.AccountID) (*interfaces.Profile, error) {
	var pr interfaces.Profile
	var ownerType int
	var accountType string
	err := p.q.QueryRow(ctx, `
		SELECT user_id, first_name, last_name, dob, country_citizenship, country_residence,
		       address, city, zip, type_owner_node, type, entity_name, entity_type,
		       entity_register_number, entity_register_country, entity_tax
		FROM profiles WHERE user_id = $1
	`, userID).Scan(
		&pr.UserID, &pr.FirstName, &pr.LastName, &pr.DOB, &pr.CountryCitizenship, &pr.CountryResidence,
		&pr.Address, &pr.City, &pr.Zip, &ownerType, &accountType, &pr.EntityName, &pr.EntityType,
		&pr.EntityRegisterNo, &pr.EntityCountry, &pr.EntityTax,
	)
	if err != nil {
		return nil, readErr("get profile", err)
	}
	pr.TypeOwnerNode = interfaces.OwnerNodeType(ownerType)
	pr.Type = interfaces.AccountType(accountType)
	return &pr, nil
}

func (p *pgQueries) SaveProfile(ctx context.Context, pr *interfaces.Profile) error {
	_, err := p.q.Exec(ctx, `
		INSERT INTO profiles (user_id, first_name, last_name, dob, country_citizenship, country_residence,
		                      address, city, zip, type_owner_node, type, entity_name, entity_type,
		                      entity_register_number, entity_register_country, entity_tax)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (user_id) DO UPDATE SET
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    dob = EXCLUDED.dob,
		    country_citizenship = EXCLUDED.country_citizenship,
		    country_residence = EXCLUDED.country_residence,
		    address = EXCLUDED.address,
		    city = EXCLUDED.city,
		    zip = EXCLUDED.zip,
		    type_owner_node = EXCLUDED.type_owner_node,
		    type = EXCLUDED.type,
		    entity_name = EXCLUDED.entity_name,
		    entity_type = EXCLUDED.entity_type,
		    entity_register_number = EXCLUDED.entity_register_number,
		    entity_register_country = EXCLUDED.entity_register_country,
		    entity_tax = EXCLUDED.entity_tax
	`,
		pr.UserID, pr.FirstName, pr.LastName, pr.DOB, pr.CountryCitizenship, pr.CountryResidence,
		pr.Address, pr.City, pr.Zip, int(pr.TypeOwnerNode), string(pr.Type), pr.EntityName, pr.EntityType,
		pr.EntityRegisterNo, pr.EntityCountry, pr.EntityTax,
	)
	if err != nil {
		return writeErr("save profile", err)
	}
	return nil
}

func (p *pgQueries) ReplaceOwnerNodes(ctx context.Context, userID interfaces.AccountID, nodes []interfaces.OwnerNode) error {
	if _, err := p.q.Exec(ctx, `DELETE FROM owner_nodes WHERE user_id = $1`, userID); err != nil {
		return writeErr("delete owner nodes", err)
	}

	for _, n := range nodes {
		_, err := p.q.Exec(ctx,
			`INSERT INTO owner_nodes (user_id, email, percent, created_at) VALUES ($1, $2, $3, $4)`,
			userID, normalizeEmail(n.Email), n.Percent, n.CreatedAt)
		if err != nil {
			return writeErr("insert owner node", err)
		}
	}
	return nil
}

func (p *pgQueries) ListOwnerNodes(ctx context.Context, userID interfaces.AccountID) ([]interfaces.OwnerNode, error) {
	rows, err := p.q.Query(ctx,
		`SELECT user_id, email, percent, created_at FROM owner_nodes WHERE user_id = $1 ORDER BY email`, userID)
	if err != nil {
		return nil, fmt.Errorf("list owner nodes: %w", err)
	}
	defer rows.Close()

	var nodes []interfaces.OwnerNode
	for rows.Next() {
		var n interfaces.OwnerNode
		if err := rows.Scan(&n.UserID, &n.Email, &n.Percent, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan owner node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (p *pgQueries) SaveAMLReference(ctx context.Context, ref *interfaces.AMLReference) error {
	_, err := p.q.Exec(ctx, `
		INSERT INTO aml_references (user_id, reference_id, status, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
		    reference_id = EXCLUDED.reference_id,
		    status = EXCLUDED.status,
		    created_at = EXCLUDED.created_at
	`, ref.UserID, ref.ReferenceID, string(ref.Status), ref.CreatedAt)
	if err != nil {
		return writeErr("save aml reference", err)
	}
	return nil
}

func (p *pgQueries) GetAMLReference(ctx context.Context, userID interfaces.AccountID, referenceID string) (*interfaces.AMLReference, error) {
	var ref interfaces.AMLReference
	var status string
	err := p.q.QueryRow(ctx,
		`SELECT user_id, reference_id, status, created_at FROM aml_references WHERE user_id = $1 AND reference_id = $2`,
		userID, referenceID).Scan(&ref.UserID, &ref.ReferenceID, &status, &ref.CreatedAt)
	if err != nil {
		return nil, readErr("get aml reference", err)
	}
	ref.Status = interfaces.AMLStatus(status)
	return &ref, nil
}

func (p *pgQueries) SaveEmailVerification(ctx context.Context, v *interfaces.EmailVerification) error {
	_, err := p.q.Exec(ctx, `
		INSERT INTO email_verifications (email, kind, code, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email, kind) DO UPDATE SET
		    code = EXCLUDED.code,
		    created_at = EXCLUDED.created_at
	`, normalizeEmail(v.Email), string(v.Kind), v.Code, v.CreatedAt)
	if err != nil {
		return writeErr("save email verification", err)
	}
	return nil
}

func (p *pgQueries) GetEmailVerification(ctx context.Context, email string, kind interfaces.VerificationKind) (*interfaces.EmailVerification, error) {
	var v interfaces.EmailVerification
	var k string
	err := p.q.QueryRow(ctx,
		`SELECT email, kind, code, created_at FROM email_verifications WHERE email = $1 AND kind = $2`,
		normalizeEmail(email), string(kind)).Scan(&v.Email, &k, &v.Code, &v.CreatedAt)
	if err != nil {
		return nil, readErr("get email verification", err)
	}
	v.Kind = interfaces.VerificationKind(k)
	return &v, nil
}

func (p *pgQueries) DeleteEmailVerificationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := p.q.Exec(ctx, `DELETE FROM email_verifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, writeErr("delete email verifications", err)
	}
	return int(tag.RowsAffected()), nil
}
