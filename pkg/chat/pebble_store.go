package chat

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"livechat/pkg/db"
)

// Key layout:
//
//	meta:msgseq                  last assigned message id (big endian uint64)
//	conv:<conversationID>        conversationRecord
//	msg:<conversationID>:<id>    Message, id zero padded so keys sort by id
var seqKey = []byte("meta:msgseq")

type conversationRecord struct {
	ID             string    `json:"id"`
	UnreadOverride *int      `json:"unread_override,omitempty"`
	LastMessageAt  time.Time `json:"last_message_at"`
	CreatedAt      time.Time `json:"created_at"`
}

func conversationKey(id string) []byte { return []byte("conv:" + id) }
func messagePrefix(id string) []byte { return []byte("msg:" + id + ":") }
func messageKey(conversationID string, id int64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%020d", conversationID, id))
}

// PebbleStore keeps the message log in an embedded pebble database.
type PebbleStore struct {
	kv  *pebble.DB
	now func() time.Time

	// mu serializes writers and guards seq.
	mu     sync.Mutex
	seq    int64
	seqErr error
	once   sync.Once
}

func NewPebbleStore(kv *pebble.DB) *PebbleStore {
	return &PebbleStore{kv: kv, now: time.Now}
}

func (s *PebbleStore) loadSeq() {
	v, closer, err := s.kv.Get(seqKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return
	}
	if err != nil {
		s.seqErr = fmt.Errorf("load message sequence: %w", err)
		return
	}
	defer closer.Close()
	if len(v) != 8 {
		s.seqErr = fmt.Errorf("corrupt message sequence (%d bytes)", len(v))
		return
	}
	s.seq = int64(binary.BigEndian.Uint64(v))
}

func (s *PebbleStore) getConversation(id string) (conversationRecord, error) {
	v, closer, err := s.kv.Get(conversationKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return conversationRecord{}, ErrConversationNotFound
		}
		return conversationRecord{}, fmt.Errorf("get conversation: %w", err)
	}
	defer closer.Close()

	var rec conversationRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return conversationRecord{}, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return rec, nil
}

func setJSON(b *pebble.Batch, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Set(key, data, nil)
}

func (s *PebbleStore) AppendMessage(ctx context.Context, conversationID string, sender Sender, body string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.once.Do(s.loadSeq)
	if s.seqErr != nil {
		return Message{}, s.seqErr
	}

	now := s.now().UTC()
	conv, err := s.getConversation(conversationID)
	switch {
	case errors.Is(err, ErrConversationNotFound):
		conv = conversationRecord{ID: conversationID, CreatedAt: now}
	case err != nil:
		return Message{}, err
	}

	createdAt := now
	if conv.LastMessageAt.After(createdAt) {
		createdAt = conv.LastMessageAt
	}
	conv.LastMessageAt = createdAt
	if conv.UnreadOverride != nil && sender == SenderCustomer {
		n := *conv.UnreadOverride + 1
		conv.UnreadOverride = &n
	}

	msg := Message{
		ID:             s.seq + 1,
		ConversationID: conversationID,
		Sender:         sender,
		Body:           body,
		CreatedAt:      createdAt,
	}

	b := s.kv.NewBatch()
	defer b.Close()

	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], uint64(msg.ID))
	if err := b.Set(seqKey, seqBuf[:], nil); err != nil {
		return Message{}, err
	}
	if err := setJSON(b, messageKey(conversationID, msg.ID), msg); err != nil {
		return Message{}, fmt.Errorf("encode message: %w", err)
	}
	if err := setJSON(b, conversationKey(conversationID), conv); err != nil {
		return Message{}, fmt.Errorf("encode conversation: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	s.seq = msg.ID
	return msg, nil
}

func (s *PebbleStore) scanMessages(conversationID string, fn func(m Message) error) error {
	return db.ScanPrefix(s.kv, messagePrefix(conversationID), func(_, value []byte) error {
		var m Message
		if err := json.Unmarshal(value, &m); err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
		return fn(m)
	})
}

func (s *PebbleStore) ListMessages(ctx context.Context, conversationID string, afterID int64) ([]Message, error) {
	result := make([]Message, 0)
	err := s.scanMessages(conversationID, func(m Message) error {
		if m.ID > afterID {
			result = append(result, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PebbleStore) MarkRead(ctx context.Context, conversationID string, reader Sender) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.kv.NewBatch()
	defer b.Close()

	changed := 0
	author := reader.Counterpart()
	err := s.scanMessages(conversationID, func(m Message) error {
		if m.Sender != author || m.Read {
			return nil
		}
		m.Read = true
		changed++
		return setJSON(b, messageKey(conversationID, m.ID), m)
	})
	if err != nil {
		return 0, err
	}

	if reader == SenderAgent {
		conv, err := s.getConversation(conversationID)
		switch {
		case err == nil && conv.UnreadOverride != nil:
			conv.UnreadOverride = nil
			if err := setJSON(b, conversationKey(conversationID), conv); err != nil {
				return 0, err
			}
		case err != nil && !errors.Is(err, ErrConversationNotFound):
			return 0, err
		}
	}

	if b.Empty() {
		return 0, nil
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("mark messages as read: %w", err)
	}
	return changed, nil
}

func (s *PebbleStore) SetUnreadOverride(ctx context.Context, conversationID string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.getConversation(conversationID)
	if err != nil {
		return err
	}
	conv.UnreadOverride = &count

	data, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	if err := s.kv.Set(conversationKey(conversationID), data, pebble.Sync); err != nil {
		return fmt.Errorf("set unread override: %w", err)
	}
	return nil
}

func (s *PebbleStore) UnreadCount(ctx context.Context, conversationID string, reader Sender) (int, error) {
	conv, err := s.getConversation(conversationID)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if reader == SenderAgent && conv.UnreadOverride != nil {
		return *conv.UnreadOverride, nil
	}

	author := reader.Counterpart()
	unread := 0
	err = s.scanMessages(conversationID, func(m Message) error {
		if m.Sender == author && !m.Read {
			unread++
		}
		return nil
	})
	return unread, err
}

func (s *PebbleStore) ConversationExists(ctx context.Context, conversationID string) (bool, error) {
	_, err := s.getConversation(conversationID)
	if errors.Is(err, ErrConversationNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *PebbleStore) Summaries(ctx context.Context) ([]Summary, error) {
	convs := make([]conversationRecord, 0)
	err := db.ScanPrefix(s.kv, []byte("conv:"), func(_, value []byte) error {
		var rec conversationRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("decode conversation: %w", err)
		}
		convs = append(convs, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]Summary, 0, len(convs))
	for _, conv := range convs {
		sum := Summary{ConversationID: conv.ID}
		err := s.scanMessages(conv.ID, func(m Message) error {
			sum.TotalCount++
			if m.Sender == SenderCustomer && !m.Read {
				sum.UnreadCount++
			}
			sum.LastMessage = m
			return nil
		})
		if err != nil {
			return nil, err
		}
		if sum.TotalCount == 0 {
			continue
		}
		if conv.UnreadOverride != nil {
			sum.UnreadCount = *conv.UnreadOverride
			sum.Overridden = true
		}
		result = append(result, sum)
	}
	return result, nil
}
