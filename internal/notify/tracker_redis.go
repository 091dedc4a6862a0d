package notify

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	trackKeyPrefix = "camprush:notify:"
	trackTTL       = 24 * time.Hour
)

// RedisTracker keeps records in a hash per message so several server
// processes share one view of engagement.
type RedisTracker struct {
	client *redis.Client
}

func NewRedisTracker(client *redis.Client) *RedisTracker {
	return &RedisTracker{client: client}
}

func trackKey(id string) string { return trackKeyPrefix + id }

func (t *RedisTracker) Start(ctx context.Context, rec Record) error {
	key := trackKey(rec.MessageID)
	created, err := t.client.HSetNX(ctx, key, "message_id", rec.MessageID).Result()
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	pipe := t.client.TxPipeline()
	pipe.HSet(ctx, key,
		"user_id", rec.UserID,
		"channel", string(rec.Channel),
		"urgency", string(rec.Urgency),
		"created_at", rec.CreatedAt.UnixMilli(),
	)
	for _, f := range eventFields(rec) {
		pipe.HSet(ctx, key, f, "1")
	}
	pipe.Expire(ctx, key, trackTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func eventFields(r Record) []string {
	var out []string
	if r.Sent {
		out = append(out, string(EventSent))
	}
	if r.Delivered {
		out = append(out, string(EventDelivered))
	}
	if r.Read {
		out = append(out, string(EventRead))
	}
	if r.Responded {
		out = append(out, string(EventResponded))
	}
	return out
}

func (t *RedisTracker) Get(ctx context.Context, id string) (Record, error) {
	m, err := t.client.HGetAll(ctx, trackKey(id)).Result()
	if err != nil {
		return Record{}, err
	}
	if len(m) == 0 {
		return Record{}, ErrNotTracked
	}
	uid, _ := strconv.ParseUint(m["user_id"], 10, 64)
	ms, _ := strconv.ParseInt(m["created_at"], 10, 64)
	return Record{
		MessageID: id,
		UserID:    uint(uid),
		Channel:   Channel(m["channel"]),
		Urgency:   Urgency(m["urgency"]),
		CreatedAt: time.UnixMilli(ms).UTC(),
		Sent:      m[string(EventSent)] == "1",
		Delivered: m[string(EventDelivered)] == "1",
		Read:      m[string(EventRead)] == "1",
		Responded: m[string(EventResponded)] == "1",
	}, nil
}

// markScript sets the event field and every field it implies, only when the
// record exists.
var markScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
for i = 1, #ARGV do redis.call('HSET', KEYS[1], ARGV[i], '1') end
return 1
`)

func (t *RedisTracker) Mark(ctx context.Context, id string, ev Event) (Record, error) {
	var r Record
	apply(&r, ev)
	fields := eventFields(r)
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	ok, err := markScript.Run(ctx, t.client, []string{trackKey(id)}, args...).Int()
	if err != nil {
		return Record{}, err
	}
	if ok == 0 {
		return Record{}, ErrNotTracked
	}
	return t.Get(ctx, id)
}

// claimScript: -1 untracked, 0 refused, 1 claimed.
var claimScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('HGET', KEYS[1], 'responded') == '1' then return 0 end
return redis.call('HSETNX', KEYS[1], ARGV[1], '1')
`)

func (t *RedisTracker) Claim(ctx context.Context, id, action string) (bool, error) {
	res, err := claimScript.Run(ctx, t.client, []string{trackKey(id)}, "claim:"+action).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, ErrNotTracked
		}
		return false, err
	}
	switch res {
	case -1:
		return false, ErrNotTracked
	case 1:
		return true, nil
	}
	return false, nil
}
