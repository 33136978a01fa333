package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/crmdesk/internal/model"
)

// ErrInvalidAPIKey is returned by Verify for malformed, unknown, revoked or
// mismatched keys.
var ErrInvalidAPIKey = errors.New("invalid api key")

const apiKeyPrefix = "crm"

type APIKeyStore struct {
	db *sql.DB
}

func NewAPIKeyStore(db *sql.DB) *APIKeyStore {
	return &APIKeyStore{db: db}
}

func scanAPIKey(scanner interface{ Scan(...any) error }) (*model.APIKey, error) {
	var k model.APIKey
	var lastUsed, revoked sql.NullTime
	err := scanner.Scan(&k.ID, &k.Name, &k.Prefix, &k.Hash, &lastUsed, &revoked, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		k.LastUsedAt = &lastUsed.Time
	}
	if revoked.Valid {
		k.RevokedAt = &revoked.Time
	}
	return &k, nil
}

const apiKeyCols = `id, name, prefix, hash, last_used_at, revoked_at, created_at`

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Create stores a new key and returns it with the plaintext token. The
// plaintext has the form crm_<prefix>_<secret> and is never stored.
func (s *APIKeyStore) Create(name string) (*model.APIKey, string, error) {
	prefix, err := randomHex(4)
	if err != nil {
		return nil, "", err
	}
	secret, err := randomHex(24)
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash api key: %w", err)
	}

	result, err := s.db.Exec(
		`INSERT INTO api_keys (name, prefix, hash) VALUES (?, ?, ?)`,
		name, prefix, string(hash),
	)
	if err != nil {
		return nil, "", fmt.Errorf("insert api key: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, "", fmt.Errorf("last insert id: %w", err)
	}
	k, err := s.GetByID(id)
	if err != nil {
		return nil, "", err
	}
	return k, apiKeyPrefix + "_" + prefix + "_" + secret, nil
}

func (s *APIKeyStore) GetByID(id int64) (*model.APIKey, error) {
	row := s.db.QueryRow(`SELECT `+apiKeyCols+` FROM api_keys WHERE id = ?`, id)
	k, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return k, nil
}

func (s *APIKeyStore) List() ([]model.APIKey, error) {
	rows, err := s.db.Query(`SELECT ` + apiKeyCols + ` FROM api_keys ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []model.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}

// Verify checks a plaintext token and records its use.
func (s *APIKeyStore) Verify(token string) (*model.APIKey, error) {
	parts := strings.SplitN(token, "_", 3)
	if len(parts) != 3 || parts[0] != apiKeyPrefix {
		return nil, ErrInvalidAPIKey
	}

	row := s.db.QueryRow(`SELECT `+apiKeyCols+` FROM api_keys WHERE prefix = ?`, parts[1])
	k, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	if k.RevokedAt != nil {
		return nil, ErrInvalidAPIKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(parts[2])); err != nil {
		return nil, ErrInvalidAPIKey
	}

	now := time.Now().UTC()
	if _, err := s.db.Exec(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, now, k.ID); err != nil {
		return nil, fmt.Errorf("touch api key: %w", err)
	}
	k.LastUsedAt = &now
	return k, nil
}

func (s *APIKeyStore) Revoke(id int64) error {
	result, err := s.db.Exec(
		`UPDATE api_keys SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
