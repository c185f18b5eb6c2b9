package creds

import (
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Register creates a new credential row. Returns false (not an error) if
// name is Reserved, AdminName, or already present — mirroring §4.C's
// "idempotent-failing" register. ADMIN is never created by Register; it
// exists only via SeedAdmin.
func (s *Store) Register(name, password string) (bool, error) {
	if name == Reserved || name == AdminName {
		return false, nil
	}
	exists, err := s.exists(name)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	// bcrypt's hash embeds its own salt; the salt column is kept for schema
	// compatibility with §6's credential store layout and carries the same
	// salt prefix bcrypt encodes into the hash itself.
	salt := string(hash[:29])

	if _, err := s.db.Exec("INSERT INTO users (name, salt, password) VALUES (?, ?, ?)", name, salt, string(hash)); err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	return true, nil
}

// Verify checks password against the stored hash for name. Always false for
// Reserved or an unknown name.
func (s *Store) Verify(name, password string) (bool, error) {
	if name == Reserved {
		return false, nil
	}
	var hash string
	err := s.db.QueryRow("SELECT password FROM users WHERE name = ?", name).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query user: %w", err)
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

// Delete removes name's credential row. Returns whether a row was removed.
func (s *Store) Delete(name string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM users WHERE name = ?", name)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// List returns a snapshot of every stored name → password hash.
func (s *Store) List() (map[string]string, error) {
	rows, err := s.db.Query("SELECT name, password FROM users")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, password string
		if err := rows.Scan(&name, &password); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out[name] = password
	}
	return out, rows.Err()
}

func (s *Store) exists(name string) (bool, error) {
	var dummy string
	err := s.db.QueryRow("SELECT name FROM users WHERE name = ?", name).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return true, nil
}

// SeedAdmin inserts the ADMIN row with password if it does not already
// exist. Idempotent, so it is safe to call on every startup.
func (s *Store) SeedAdmin(password string) error {
	exists, err := s.exists(AdminName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	salt := string(hash[:29])
	_, err = s.db.Exec("INSERT INTO users (name, salt, password) VALUES (?, ?, ?)", AdminName, salt, string(hash))
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}
