package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// conversations are keyed by identity uuid; anything else cannot exist.
func parseConversationID(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", ErrConversationNotFound
	}
	return parsed.String(), nil
}

// AppendMessage locks the conversation row so ids and created_at grow together.
func (r *PostgresStore) AppendMessage(ctx context.Context, conversationID string, sender Sender, body string) (Message, error) {
	if r.pool == nil {
		return Message{}, errors.New("db pool is nil")
	}
	id, err := parseConversationID(conversationID)
	if err != nil {
		return Message{}, err
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctxTimeout)
	if err != nil {
		return Message{}, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctxTimeout)

	const upsertSQL = `
		INSERT INTO chat_conversations (identity_id) VALUES ($1)
		ON CONFLICT (identity_id) DO NOTHING
	`
	if _, err := tx.Exec(ctxTimeout, upsertSQL, id); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Message{}, ErrConversationNotFound
		}
		return Message{}, fmt.Errorf("upsert conversation: %w", err)
	}

	var last *time.Time
	if err := tx.QueryRow(ctxTimeout, `SELECT last_message_at FROM chat_conversations WHERE identity_id = $1 FOR UPDATE`, id).Scan(&last); err != nil {
		return Message{}, fmt.Errorf("lock conversation: %w", err)
	}

	createdAt := r.now().UTC()
	if last != nil && last.After(createdAt) {
		createdAt = last.UTC()
	}

	msg := Message{ConversationID: id, Sender: sender, Body: body, CreatedAt: createdAt}
	const insertSQL = `
		INSERT INTO chat_messages (identity_id, sender, body, is_read, created_at)
		VALUES ($1, $2, $3, FALSE, $4)
		RETURNING id
	`
	if err := tx.QueryRow(ctxTimeout, insertSQL, id, string(sender), body, createdAt).Scan(&msg.ID); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	const touchSQL = `
		UPDATE chat_conversations
		SET last_message_at = $2,
		    unread_override = CASE WHEN unread_override IS NOT NULL AND $3 THEN unread_override + 1 ELSE unread_override END
		WHERE identity_id = $1
	`
	if _, err := tx.Exec(ctxTimeout, touchSQL, id, createdAt, sender == SenderCustomer); err != nil {
		return Message{}, fmt.Errorf("update conversation: %w", err)
	}

	if err := tx.Commit(ctxTimeout); err != nil {
		return Message{}, fmt.Errorf("commit append: %w", err)
	}
	return msg, nil
}

func (r *PostgresStore) ListMessages(ctx context.Context, conversationID string, afterID int64) ([]Message, error) {
	id, err := parseConversationID(conversationID)
	if err != nil {
		return nil, err
	}

	const querySQL = `
		SELECT id, identity_id::text, sender, body, created_at, is_read
		FROM chat_messages
		WHERE identity_id = $1 AND id > $2
		ORDER BY id ASC
	`

	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctxTimeout, querySQL, id, afterID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	result := make([]Message, 0)
	for rows.Next() {
		var m Message
		var sender string
		if err := rows.Scan(&m.ID, &m.ConversationID, &sender, &m.Body, &m.CreatedAt, &m.Read); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Sender = Sender(sender)
		m.CreatedAt = m.CreatedAt.UTC()
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

func (r *PostgresStore) MarkRead(ctx context.Context, conversationID string, reader Sender) (int, error) {
	id, err := parseConversationID(conversationID)
	if err != nil {
		return 0, err
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctxTimeout)
	if err != nil {
		return 0, fmt.Errorf("begin mark read: %w", err)
	}
	defer tx.Rollback(ctxTimeout)

	const updateSQL = `
		UPDATE chat_messages
		SET is_read = TRUE
		WHERE identity_id = $1 AND sender = $2 AND is_read = FALSE
	`
	cmd, err := tx.Exec(ctxTimeout, updateSQL, id, string(reader.Counterpart()))
	if err != nil {
		return 0, fmt.Errorf("mark messages as read: %w", err)
	}

	if reader == SenderAgent {
		if _, err := tx.Exec(ctxTimeout, `UPDATE chat_conversations SET unread_override = NULL WHERE identity_id = $1`, id); err != nil {
			return 0, fmt.Errorf("clear unread override: %w", err)
		}
	}

	if err := tx.Commit(ctxTimeout); err != nil {
		return 0, fmt.Errorf("commit mark read: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}

func (r *PostgresStore) SetUnreadOverride(ctx context.Context, conversationID string, count int) error {
	id, err := parseConversationID(conversationID)
	if err != nil {
		return err
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	cmd, err := r.pool.Exec(ctxTimeout, `UPDATE chat_conversations SET unread_override = $2 WHERE identity_id = $1`, id, count)
	if err != nil {
		return fmt.Errorf("set unread override: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (r *PostgresStore) UnreadCount(ctx context.Context, conversationID string, reader Sender) (int, error) {
	id, err := parseConversationID(conversationID)
	if err != nil {
		return 0, err
	}

	const querySQL = `
		SELECT c.unread_override,
		       (SELECT COUNT(*) FROM chat_messages m
		        WHERE m.identity_id = c.identity_id AND m.sender = $2 AND m.is_read = FALSE)
		FROM chat_conversations c
		WHERE c.identity_id = $1
	`

	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var override *int32
	var unread int64
	err = r.pool.QueryRow(ctxTimeout, querySQL, id, string(reader.Counterpart())).Scan(&override, &unread)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("count unread: %w", err)
	}
	if reader == SenderAgent && override != nil {
		return int(*override), nil
	}
	return int(unread), nil
}

func (r *PostgresStore) ConversationExists(ctx context.Context, conversationID string) (bool, error) {
	id, err := parseConversationID(conversationID)
	if err != nil {
		return false, nil
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exists bool
	if err := r.pool.QueryRow(ctxTimeout, `SELECT EXISTS (SELECT 1 FROM chat_conversations WHERE identity_id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check conversation: %w", err)
	}
	return exists, nil
}

// Summaries recomputes unread counts from the per-message flags on every
// call; only an active override replaces them.
func (r *PostgresStore) Summaries(ctx context.Context) ([]Summary, error) {
	const querySQL = `
		SELECT c.identity_id::text,
		       c.unread_override,
		       (SELECT COUNT(*) FROM chat_messages m WHERE m.identity_id = c.identity_id),
		       (SELECT COUNT(*) FROM chat_messages m
		        WHERE m.identity_id = c.identity_id AND m.sender = 'customer' AND m.is_read = FALSE),
		       last.id, last.sender, last.body, last.created_at, last.is_read
		FROM chat_conversations c
		JOIN LATERAL (
			SELECT id, sender, body, created_at, is_read
			FROM chat_messages m
			WHERE m.identity_id = c.identity_id
			ORDER BY id DESC
			LIMIT 1
		) last ON TRUE
		ORDER BY last.created_at DESC, last.id DESC
	`

	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctxTimeout, querySQL)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	result := make([]Summary, 0)
	for rows.Next() {
		var s Summary
		var override *int32
		var total, unread int64
		var sender string
		if err := rows.Scan(&s.ConversationID, &override, &total, &unread,
			&s.LastMessage.ID, &sender, &s.LastMessage.Body, &s.LastMessage.CreatedAt, &s.LastMessage.Read); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.LastMessage.ConversationID = s.ConversationID
		s.LastMessage.Sender = Sender(sender)
		s.LastMessage.CreatedAt = s.LastMessage.CreatedAt.UTC()
		s.TotalCount = int(total)
		s.UnreadCount = int(unread)
		if override != nil {
			s.UnreadCount = int(*override)
			s.Overridden = true
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}
