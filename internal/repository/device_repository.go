package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/quiz-integrity/internal/config"
)

// DeviceRepository binds a student's quiz stream to the first device seen.
type DeviceRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDeviceRepository creates a new DeviceRepository.
func NewDeviceRepository(rdb *redis.Client, ttl time.Duration) *DeviceRepository {
	return &DeviceRepository{rdb: rdb, ttl: ttl}
}

// Bind claims the binding for deviceID. It returns the device already bound
// and whether it matches deviceID.
func (r *DeviceRepository) Bind(ctx context.Context, quizID, studentID, deviceID string) (string, bool, error) {
	key := config.CacheKey.StudentDeviceKey(quizID, studentID)

	ok, err := r.rdb.SetNX(ctx, key, deviceID, r.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return deviceID, true, nil
	}

	bound, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			return r.Bind(ctx, quizID, studentID, deviceID)
		}
		return "", false, err
	}
	return bound, bound == deviceID, nil
}
