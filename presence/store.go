package presence

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"
)

const (
	checklistsKey      = "presence:checklists"
	checklistKeyPrefix = "presence:checklist:"
)

// Store keeps, per checklist, the connections currently admitted by any
// relay instance.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func checklistKey(checklistID string) string {
	return checklistKeyPrefix + checklistID
}

// Join records connectionID for clientID in the checklist.
func (s *Store) Join(ctx context.Context, checklistID, connectionID, clientID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, checklistKey(checklistID), connectionID, clientID)
		pipe.SAdd(ctx, checklistsKey, checklistID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("join checklist %s: %w", checklistID, err)
	}
	return nil
}

// Leave forgets connectionID and drops the checklist once nobody is left.
func (s *Store) Leave(ctx context.Context, checklistID, connectionID string) error {
	key := checklistKey(checklistID)
	if err := s.rdb.HDel(ctx, key, connectionID).Err(); err != nil {
		return fmt.Errorf("leave checklist %s: %w", checklistID, err)
	}

	remaining, err := s.rdb.HLen(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("count checklist %s: %w", checklistID, err)
	}
	if remaining == 0 {
		if err := s.rdb.SRem(ctx, checklistsKey, checklistID).Err(); err != nil {
			return fmt.Errorf("drop checklist %s: %w", checklistID, err)
		}
	}
	return nil
}

// Members returns the distinct client ids connected to a checklist, sorted.
func (s *Store) Members(ctx context.Context, checklistID string) ([]string, error) {
	clientIDs, err := s.rdb.HVals(ctx, checklistKey(checklistID)).Result()
	if err != nil {
		return nil, fmt.Errorf("members of checklist %s: %w", checklistID, err)
	}

	seen := make(map[string]struct{}, len(clientIDs))
	members := make([]string, 0, len(clientIDs))
	for _, id := range clientIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	sort.Strings(members)
	return members, nil
}

// Checklists returns the ids of checklists with at least one connection.
func (s *Store) Checklists(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, checklistsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list checklists: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}
