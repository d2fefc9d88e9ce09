// seed-demo populates a demo student, question bank and hall ticket so the
// full exam flow can be exercised locally without the admin tooling.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/invigilo/proctor-backend/internal/config"
	"github.com/invigilo/proctor-backend/internal/database"
	"github.com/invigilo/proctor-backend/internal/logger"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	var studentID int
	err = pool.QueryRow(ctx,
		`INSERT INTO students (name, roll_number, email)
		 VALUES ('Demo Student', 'DEMO-001', 'demo.student@example.com')
		 ON CONFLICT (roll_number) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
	).Scan(&studentID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed student")
	}

	var qbankID string
	err = pool.QueryRow(ctx,
		`INSERT INTO question_banks (title) VALUES ('Demo General Knowledge') RETURNING id`,
	).Scan(&qbankID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed question bank")
	}

	questions := []struct {
		text    string
		options string
		correct string
	}{
		{"What is the capital of France?", `{"A":"Berlin","B":"Paris","C":"Madrid","D":"Rome"}`, "B"},
		{"2 + 2 * 2 = ?", `{"A":"6","B":"8","C":"4","D":"12"}`, "A"},
		{"Which planet is known as the Red Planet?", `{"A":"Venus","B":"Jupiter","C":"Mars","D":"Saturn"}`, "C"},
		{"Water boils at what temperature at sea level?", `{"A":"90C","B":"80C","C":"110C","D":"100C"}`, "D"},
		{"Which gas do plants absorb?", `{"A":"CO2","B":"O2","C":"N2","D":"H2"}`, "A"},
	}
	for i, q := range questions {
		if _, err := pool.Exec(ctx,
			`INSERT INTO questions (qbank_id, question_text, options, correct_option, order_num)
			 VALUES ($1, $2, $3::jsonb, $4, $5)`,
			qbankID, q.text, q.options, q.correct, i+1,
		); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed question")
		}
	}

	token := randomToken()
	var ticketID string
	err = pool.QueryRow(ctx,
		`INSERT INTO hall_tickets
		   (ticket_token, student_id, exam_title, qbank_id, question_count, duration_minutes, status, is_verified, valid_from, valid_until)
		 VALUES ($1, $2, 'Demo Exam', $3, 5, 30, 'ACTIVE', FALSE, $4, $5)
		 RETURNING id`,
		token, studentID, qbankID,
		time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour),
	).Scan(&ticketID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed hall ticket")
	}

	fmt.Println("Demo data seeded.")
	fmt.Printf("  Student ID:    %d\n", studentID)
	fmt.Printf("  Hall ticket:   %s\n", ticketID)
	fmt.Printf("  Ticket token:  %s\n", token)
	fmt.Println("Log in with: POST /api/v1/auth/hall-ticket {\"ticket_token\": \"" + token + "\"}")
}

func randomToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
