// README: Broadcast bookkeeping backed by Redis GEO and sets.
package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"unipool/internal/types"
)

const (
	driverGeoKey       = "broadcast:drivers"
	dispatchKeyPrefix  = "broadcast:req:%s:dispatched_at"
	notifiedKeyPrefix  = "broadcast:req:%s:notified"
	broadcastKeyPrefix = "broadcast:req:%s:widened"
	// TTL for dispatch and broadcast keys; requests resolve well within a day.
	keyTTL = 24 * time.Hour
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

// SetDriverLocation upserts a driver into the GEO index of claim-eligible
// drivers.
func (s *Store) SetDriverLocation(ctx context.Context, id types.ID, pos types.Point) error {
	return s.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
}

func (s *Store) RemoveDriver(ctx context.Context, id types.ID) error {
	return s.redis.ZRem(ctx, driverGeoKey, string(id)).Err()
}

// NearbyDrivers returns driver ids within radiusKm of p, nearest first.
func (s *Store) NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, driverGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

// RecordDispatch records the dispatch timestamp and the set of notified
// drivers for a request.
func (s *Store) RecordDispatch(ctx context.Context, requestID types.ID, driverIDs []types.ID) error {
	pipe := s.redis.Pipeline()
	pipe.Set(ctx, dispatchedAtKey(requestID), time.Now().UTC().Format(time.RFC3339), keyTTL)
	if len(driverIDs) > 0 {
		members := make([]interface{}, len(driverIDs))
		for i, d := range driverIDs {
			members[i] = string(d)
		}
		key := fmt.Sprintf(notifiedKeyPrefix, string(requestID))
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, keyTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// GetDispatchedAt returns when the request was first dispatched, and whether
// it has been dispatched at all.
func (s *Store) GetDispatchedAt(ctx context.Context, requestID types.ID) (time.Time, bool, error) {
	val, err := s.redis.Get(ctx, dispatchedAtKey(requestID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// MarkWidened marks a request as having been opened to the full driver pool.
func (s *Store) MarkWidened(ctx context.Context, requestID types.ID) error {
	return s.redis.Set(ctx, widenedKey(requestID), "1", keyTTL).Err()
}

// IsWidened reports whether a request has been opened to the full pool.
func (s *Store) IsWidened(ctx context.Context, requestID types.ID) (bool, error) {
	val, err := s.redis.Get(ctx, widenedKey(requestID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "1", nil
}

func dispatchedAtKey(requestID types.ID) string {
	return fmt.Sprintf(dispatchKeyPrefix, string(requestID))
}

func widenedKey(requestID types.ID) string {
	return fmt.Sprintf(broadcastKeyPrefix, string(requestID))
}
