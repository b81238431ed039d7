package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"livechat/pkg/db"
)

// identityRecord is the stored form; unlike Identity it keeps the secret.
type identityRecord struct {
	ID               string    `json:"id"`
	DisplayName      string    `json:"display_name"`
	ContactAddress   string    `json:"contact_address"`
	CredentialSecret string    `json:"credential_secret"`
	CreatedAt        time.Time `json:"created_at"`
}

type pebbleIdentityRepository struct {
	kv *pebble.DB
	// mu makes the address uniqueness check and the insert one step.
	mu sync.Mutex
}

func NewPebbleIdentityRepository(kv *pebble.DB) IdentityRepository {
	return &pebbleIdentityRepository{kv: kv}
}

func identityKey(id string) []byte { return []byte("identity:id:" + id) }
func addressKey(address string) []byte { return []byte("identity:addr:" + address) }

func (r *pebbleIdentityRepository) get(key []byte) ([]byte, error) {
	v, closer, err := r.kv.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

func (r *pebbleIdentityRepository) CreateIdentity(ctx context.Context, in Identity) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.get(addressKey(in.ContactAddress)); err == nil {
		return Identity{}, ErrIdentityExists
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return Identity{}, fmt.Errorf("check address: %w", err)
	}

	in.CreatedAt = time.Now().UTC()
	data, err := json.Marshal(identityRecord(in))
	if err != nil {
		return Identity{}, fmt.Errorf("marshal identity: %w", err)
	}

	b := r.kv.NewBatch()
	defer b.Close()
	if err := b.Set(identityKey(in.ID), data, nil); err != nil {
		return Identity{}, err
	}
	if err := b.Set(addressKey(in.ContactAddress), []byte(in.ID), nil); err != nil {
		return Identity{}, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return Identity{}, fmt.Errorf("insert identity: %w", err)
	}
	return in, nil
}

func (r *pebbleIdentityRepository) GetIdentityByID(ctx context.Context, id string) (Identity, error) {
	data, err := r.get(identityKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, fmt.Errorf("get identity: %w", err)
	}
	var rec identityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Identity{}, fmt.Errorf("decode identity %s: %w", id, err)
	}
	return Identity(rec), nil
}

func (r *pebbleIdentityRepository) GetIdentityByAddress(ctx context.Context, address string) (Identity, error) {
	id, err := r.get(addressKey(address))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, fmt.Errorf("get identity by address: %w", err)
	}
	return r.GetIdentityByID(ctx, string(id))
}

func (r *pebbleIdentityRepository) ListIdentities(ctx context.Context) ([]Identity, error) {
	list := make([]Identity, 0)
	err := db.ScanPrefix(r.kv, []byte("identity:id:"), func(_, value []byte) error {
		var rec identityRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("decode identity: %w", err)
		}
		list = append(list, Identity(rec))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}
