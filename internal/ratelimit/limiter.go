// Package ratelimit enforces a campaign's max_per_hour ceiling over a sliding
// 60-minute window. The count is a query over persisted recipient rows, so
// every worker process sees the same number.
package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"math"
	"time"
)

const Window = 60 * time.Minute

// Reservation is the outcome of Reserve.
type Reservation struct {
	Allowed bool
	// Count is the number of sends and in-flight reservations in the window,
	// excluding the recipient being reserved.
	Count int
	// Stale is set when the recipient was no longer pending or queued.
	Stale bool
}

type Limiter struct {
	DB  *sql.DB
	Now func() time.Time
}

func New(db *sql.DB) *Limiter {
	return &Limiter{DB: db, Now: time.Now}
}

// Evaluate reports whether one more send fits under the ceiling. A nil
// ceiling always permits.
func Evaluate(count int, ceiling *int) bool {
	if ceiling == nil {
		return true
	}
	return count < *ceiling
}

// RescheduleDelay is how far a throttled task moves forward:
// ceil(60/maxPerHour)+1 minutes.
func RescheduleDelay(maxPerHour int) time.Duration {
	if maxPerHour <= 0 {
		return Window + time.Minute
	}
	minutes := int(math.Ceil(60/float64(maxPerHour))) + 1
	return time.Duration(minutes) * time.Minute
}

const windowQuery = `
	SELECT COUNT(*) FROM campaign_recipients
	WHERE campaign_id=$1 AND id <> $2
	  AND ((status='sent' AND sent_at > $3) OR (status='queued' AND queued_at > $3))
`

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func count(ctx context.Context, q querier, campaignID, excludeID string, since time.Time) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, windowQuery, campaignID, excludeID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count window for campaign %s: %w", campaignID, err)
	}
	return n, nil
}

// Allow is a read-only check. Use Reserve to actually take a slot.
func (l *Limiter) Allow(ctx context.Context, campaignID string, ceiling *int) (bool, error) {
	if ceiling == nil {
		return true, nil
	}
	n, err := count(ctx, l.DB, campaignID, "", l.now().Add(-Window))
	if err != nil {
		return false, err
	}
	return Evaluate(n, ceiling), nil
}

// Reserve counts the window and, if there is room, moves the recipient to
// queued. The count and the update run under a transaction-scoped advisory
// lock on the campaign so concurrent workers cannot overshoot the ceiling.
func (l *Limiter) Reserve(ctx context.Context, campaignID, recipientID string, ceiling *int) (Reservation, error) {
	now := l.now()
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return Reservation{}, err
	}
	defer tx.Rollback()

	res := Reservation{Allowed: true}
	if ceiling != nil {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(campaignID)); err != nil {
			return Reservation{}, fmt.Errorf("lock campaign %s: %w", campaignID, err)
		}
		n, err := count(ctx, tx, campaignID, recipientID, now.Add(-Window))
		if err != nil {
			return Reservation{}, err
		}
		res.Count = n
		if !Evaluate(n, ceiling) {
			res.Allowed = false
			return res, nil
		}
	}

	r, err := tx.ExecContext(ctx, `
		UPDATE campaign_recipients SET status='queued', queued_at=$2
		WHERE id=$1 AND status IN ('pending','queued')
	`, recipientID, now)
	if err != nil {
		return Reservation{}, err
	}
	affected, err := r.RowsAffected()
	if err != nil {
		return Reservation{}, err
	}
	if affected == 0 {
		return Reservation{Stale: true}, nil
	}
	if err := tx.Commit(); err != nil {
		return Reservation{}, err
	}
	return res, nil
}

func (l *Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func lockKey(campaignID string) int64 {
	h := fnv.New64a()
	h.Write([]byte("ratelimit:" + campaignID))
	return int64(h.Sum64())
}
