// Seeds a development database with sample users, documents, messages, and
// activity so backups have something to export.
//
// Usage: DATABASE_URL=postgres://... go run ./seeds/dochub
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type seedUser struct {
	username string
	role     string
	fullName string
}

var seedUsers = []seedUser{
	{"admin", "admin", "Hub Administrator"},
	{"alice", "user", "Alice Archer"},
	{"bob", "user", "Bob Brandt"},
}

func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := seed(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("dev data seeded")
}

func seed(ctx context.Context, pool *pgxpool.Pool) error {
	ids := make(map[string]int64, len(seedUsers))
	for _, u := range seedUsers {
		var id int64
		err := pool.QueryRow(ctx,
			`INSERT INTO users (username, password_hash, role, full_name)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (username) DO UPDATE SET role = EXCLUDED.role
			 RETURNING user_id`,
			u.username, randomHash(), u.role, u.fullName,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert user %s: %w", u.username, err)
		}
		ids[u.username] = id
	}

	documents := []struct {
		title, path, by string
		owner           string
		size            int64
	}{
		{"Onboarding Guide", "shared_documents/onboarding.pdf", "admin", "admin", 48213},
		{"Q1 Report", "shared_documents/q1-report.pdf", "alice", "alice", 192001},
		{"Meeting Notes", "shared_documents/notes.txt", "bob", "bob", 1320},
	}
	for _, d := range documents {
		if _, err := pool.Exec(ctx,
			`INSERT INTO documents (title, file_path, uploaded_by, user_id, file_size)
			 VALUES ($1, $2, $3, $4, $5)`,
			d.title, d.path, d.by, ids[d.owner], d.size,
		); err != nil {
			return fmt.Errorf("insert document %s: %w", d.title, err)
		}
	}

	if _, err := pool.Exec(ctx,
		`INSERT INTO messages (sender_id, receiver_id, message_text)
		 VALUES ($1, $2, 'Welcome to the document hub!'), ($2, $1, 'Thanks, glad to be here.')`,
		ids["admin"], ids["alice"],
	); err != nil {
		return fmt.Errorf("insert messages: %w", err)
	}

	if _, err := pool.Exec(ctx,
		`INSERT INTO activity_logs (user_id, action_type, action_details)
		 VALUES ($1, 'login', 'seeded login'), ($1, 'upload', 'seeded upload of Onboarding Guide')`,
		ids["admin"],
	); err != nil {
		return fmt.Errorf("insert activity logs: %w", err)
	}

	return nil
}

func randomHash() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
