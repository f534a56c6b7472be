package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okian/nudge/internal/adapters/blobstore"
)

// RosterPath is where the master roster lives.
const RosterPath = "master/latest.json"

// Roster stores the master list of names as a JSON array.
type Roster struct {
	store blobstore.Store
}

// NewRoster creates a roster repository over store.
func NewRoster(store blobstore.Store) *Roster {
	return &Roster{store: store}
}

// Save implements RosterStore.
func (r *Roster) Save(ctx context.Context, names []string) error {
	if names == nil {
		names = []string{}
	}
	body, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("encode roster: %w", err)
	}
	if _, err := r.store.Put(ctx, RosterPath, body); err != nil {
		return fmt.Errorf("write roster: %w", err)
	}
	return nil
}

// Load implements RosterStore. A missing roster is empty.
func (r *Roster) Load(ctx context.Context) ([]string, error) {
	data, _, err := r.store.Read(ctx, RosterPath)
	if errors.Is(err, blobstore.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("decode roster: %w: %w", ErrCorrupted, err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}
