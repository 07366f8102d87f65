package statestore

import (
	"context"
	"fmt"
	"time"

	"github.com/garyburd/redigo/redis"

	"fleet-signage/internal/fleet"
)

const keyPrefix = "signage:announce:"

// Redis keeps announcement state in one hash per bus so several server
// instances share the same debounce window.
type Redis struct {
	pool *redis.Pool
}

func Dial(addr, password string, db int) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     5,
		IdleTimeout: 4 * time.Minute,
		Dial: func() (redis.Conn, error) {
			opts := []redis.DialOption{
				redis.DialDatabase(db),
				redis.DialConnectTimeout(3 * time.Second),
				redis.DialReadTimeout(2 * time.Second),
				redis.DialWriteTimeout(2 * time.Second),
			}
			if password != "" {
				opts = append(opts, redis.DialPassword(password))
			}
			return redis.Dial("tcp", addr, opts...)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

func NewRedis(pool *redis.Pool) *Redis { return &Redis{pool: pool} }

func Key(busID string) string { return keyPrefix + busID }

func (r *Redis) Get(_ context.Context, busID string) (fleet.AnnouncementState, bool, error) {
	conn := r.pool.Get()
	defer conn.Close()

	reply, err := redis.Values(conn.Do("HMGET", Key(busID), "name", "stage", "ts"))
	if err != nil {
		return fleet.AnnouncementState{}, false, fmt.Errorf("hmget %s: %w", Key(busID), err)
	}
	return decode(reply)
}

func (r *Redis) Put(_ context.Context, busID string, st fleet.AnnouncementState) error {
	conn := r.pool.Get()
	defer conn.Close()

	_, err := conn.Do("HMSET", Key(busID), "name", st.Name, "stage", string(st.Stage), "ts", st.Timestamp)
	if err != nil {
		return fmt.Errorf("hmset %s: %w", Key(busID), err)
	}
	return nil
}

func (r *Redis) Close() error { return r.pool.Close() }

// decode turns an HMGET reply for name, stage, ts into a state. A missing
// hash comes back as all nils.
func decode(reply []interface{}) (fleet.AnnouncementState, bool, error) {
	if len(reply) != 3 || reply[0] == nil {
		return fleet.AnnouncementState{}, false, nil
	}
	var (
		st    fleet.AnnouncementState
		stage string
	)
	if _, err := redis.Scan(reply, &st.Name, &stage, &st.Timestamp); err != nil {
		return fleet.AnnouncementState{}, false, fmt.Errorf("scan announcement state: %w", err)
	}
	st.Stage = fleet.Stage(stage)
	return st, true, nil
}
