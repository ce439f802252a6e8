// Package queue carries scan jobs between submitters and workers over Redis.
//
// Jobs move from the pending list to a processing list on delivery and stay
// there until acknowledged. A negative acknowledgement puts the job back on
// pending with its attempt count bumped; once a job has been delivered
// MaxDeliveries times it goes to the dead-letter list instead. Jobs left on
// the processing list by a worker that died are put back by Recover, which
// counts as a failed delivery.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hakim/threatiac/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultMaxDeliveries caps redelivery of a failing job.
const DefaultMaxDeliveries = 5

// Options configures the Redis connection and list names.
type Options struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379/0")
	URL string

	// Name prefixes the pending, processing and dead-letter lists.
	Name string

	MaxDeliveries int

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Delivery is one job handed to a worker. It must be passed back to Ack or
// Nack exactly once.
type Delivery struct {
	Job models.ScanJob
	raw string
}

// Stats reports list lengths.
type Stats struct {
	Pending    int64
	Processing int64
	Dead       int64
}

// RedisQueue is a reliable work queue on Redis lists.
type RedisQueue struct {
	client        *redis.Client
	pending       string
	processing    string
	dead          string
	maxDeliveries int
}

// NewRedisQueue connects to Redis and verifies the connection with PING.
func NewRedisQueue(opts Options) (*RedisQueue, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379/0"
	}
	if opts.Name == "" {
		opts.Name = "threatiac:scans"
	}
	if opts.MaxDeliveries <= 0 {
		opts.MaxDeliveries = DefaultMaxDeliveries
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisQueue{
		client:        client,
		pending:       opts.Name + ":pending",
		processing:    opts.Name + ":processing",
		dead:          opts.Name + ":dead",
		maxDeliveries: opts.MaxDeliveries,
	}, nil
}

// Enqueue appends a job to the pending list.
func (q *RedisQueue) Enqueue(ctx context.Context, job models.ScanJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.pending, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue scan %s: %w", job.ScanID, err)
	}
	return nil
}

// Dequeue waits up to wait for the oldest pending job and moves it to the
// processing list. It returns nil, nil when nothing arrived in time.
func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (*Delivery, error) {
	raw, err := q.client.BLMove(ctx, q.pending, q.processing, "RIGHT", "LEFT", wait).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue from %s: %w", q.pending, err)
	}

	var job models.ScanJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// Undecodable payloads can never succeed.
		if derr := q.deadLetter(ctx, raw, raw); derr != nil {
			return nil, derr
		}
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &Delivery{Job: job, raw: raw}, nil
}

// Ack removes a finished delivery from the processing list.
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.client.LRem(ctx, q.processing, 1, d.raw).Err(); err != nil {
		return fmt.Errorf("failed to ack scan %s: %w", d.Job.ScanID, err)
	}
	return nil
}

// Nack returns a delivery to the pending list with its attempt count
// incremented, or dead-letters it once MaxDeliveries is reached. It reports
// whether the job was dead-lettered.
func (q *RedisQueue) Nack(ctx context.Context, d *Delivery) (bool, error) {
	job := d.Job
	job.Attempts++

	data, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("failed to marshal job: %w", err)
	}

	if job.Attempts >= q.maxDeliveries {
		return true, q.deadLetter(ctx, d.raw, string(data))
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, d.raw)
		pipe.LPush(ctx, q.pending, data)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to requeue scan %s: %w", job.ScanID, err)
	}
	return false, nil
}

func (q *RedisQueue) deadLetter(ctx context.Context, raw, payload string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, raw)
		pipe.LPush(ctx, q.dead, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to dead-letter job: %w", err)
	}
	return nil
}

// Recover settles every job left on the processing list as a failed delivery:
// it goes back to pending with attempts+1, or to the dead-letter list once
// MaxDeliveries is reached. It must run before any consumer of the same queue
// starts, since in-flight deliveries look the same as abandoned ones.
func (q *RedisQueue) Recover(ctx context.Context) (requeued, dead int, err error) {
	for {
		raw, err := q.client.LIndex(ctx, q.processing, -1).Result()
		if errors.Is(err, redis.Nil) {
			return requeued, dead, nil
		}
		if err != nil {
			return requeued, dead, fmt.Errorf("failed to read %s: %w", q.processing, err)
		}

		var job models.ScanJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			if err := q.deadLetter(ctx, raw, raw); err != nil {
				return requeued, dead, err
			}
			dead++
			continue
		}

		lettered, err := q.Nack(ctx, &Delivery{Job: job, raw: raw})
		if err != nil {
			return requeued, dead, err
		}
		if lettered {
			dead++
		} else {
			requeued++
		}
	}
}

// Stats returns the current list lengths.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	var pending, processing, dead *redis.IntCmd
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pending = pipe.LLen(ctx, q.pending)
		processing = pipe.LLen(ctx, q.processing)
		dead = pipe.LLen(ctx, q.dead)
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return Stats{Pending: pending.Val(), Processing: processing.Val(), Dead: dead.Val()}, nil
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
