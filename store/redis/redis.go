package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/LdDl/cityflow"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "cityflow"
	slotsSet      = "slots"
	statsLatest   = "stats:latest"
	statsChannel  = "stats"
)

// Store keeps network states and latest epoch statistics in Redis. Statistics are also published to a channel.
type Store struct {
	client *redis.Client
	prefix string
}

func NewStore(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(parts ...string) string {
	key := s.prefix
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

// StatsChannel returns name of pub/sub channel statistics are published to
func (s *Store) StatsChannel() string {
	return s.key(statsChannel)
}

// SaveState implements cityflow.StateStore
func (s *Store) SaveState(ctx context.Context, slot string, state *cityflow.NetworkState) error {
	data, err := cityflow.MarshalState(state)
	if err != nil {
		return err
	}
	key := s.key("state", slot)
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return errors.Wrapf(err, "Can't SET key %s", key)
	}
	if err := s.client.SAdd(ctx, s.key(slotsSet), slot).Err(); err != nil {
		log.Printf("Failed to SADD slot %s: %v", slot, err)
	}
	return nil
}

// LoadState implements cityflow.StateStore
func (s *Store) LoadState(ctx context.Context, slot string) (*cityflow.NetworkState, error) {
	key := s.key("state", slot)
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errors.Wrapf(cityflow.ErrStateNotFound, "slot '%s'", slot)
		}
		return nil, errors.Wrapf(err, "Can't GET key %s", key)
	}
	return cityflow.UnmarshalState(data)
}

// Slots returns names of saved slots
func (s *Store) Slots(ctx context.Context) ([]string, error) {
	slots, err := s.client.SMembers(ctx, s.key(slotsSet)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "Can't SMEMBERS %s", s.key(slotsSet))
	}
	return slots, nil
}

// PublishStats implements cityflow.StatsSink
func (s *Store) PublishStats(ctx context.Context, stats *cityflow.EpochStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return errors.Wrap(err, "Can't marshal stats")
	}
	if err := s.client.Set(ctx, s.key(statsLatest), data, 0).Err(); err != nil {
		return errors.Wrapf(err, "Can't SET key %s", s.key(statsLatest))
	}
	if err := s.client.Publish(ctx, s.StatsChannel(), data).Err(); err != nil {
		return errors.Wrapf(err, "Can't PUBLISH to %s", s.StatsChannel())
	}
	return nil
}

// LatestStats returns statistics published last
func (s *Store) LatestStats(ctx context.Context) (*cityflow.EpochStats, bool) {
	data, err := s.client.Get(ctx, s.key(statsLatest)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("Failed to GET key %s: %v", s.key(statsLatest), err)
		}
		return nil, false
	}
	stats := &cityflow.EpochStats{}
	if err := json.Unmarshal(data, stats); err != nil {
		log.Printf("Failed to unmarshal stats: %v", err)
		return nil, false
	}
	return stats, true
}

func (s *Store) String() string {
	return fmt.Sprintf("redis store (prefix '%s')", s.prefix)
}
