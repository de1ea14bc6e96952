package reconcile

import (
	"context"
	"encoding/binary"
	"sort"
	"time"

	"github.com/flasheng/flasheng/internal/domain"
	"github.com/flasheng/flasheng/pkg/common"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	bucketPending  = []byte("pending")
	bucketResolved = []byte("resolved")
)

const (
	OperationPlaceOrder    = "place_order"
	OperationUpdateStatus  = "update_status"
	OperationDeleteOrder   = "delete_order"
	OperationRecordPayment = "record_payment"
)

// Entry one operation that committed on some stores and not on others
type Entry struct {
	ID          int64      `json:"id,string"`
	Operation   string     `json:"operation"`
	OrderID     int64      `json:"order_id"`
	UserID      int64      `json:"user_id"`
	Committed   []string   `json:"committed"`
	Uncommitted []string   `json:"uncommitted"`
	Reason      string     `json:"reason"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	Note        string     `json:"note,omitempty"`
}

// Journal durable local record of partial commits awaiting manual reconciliation
type Journal struct {
	db *bbolt.DB
}

func Open(path string) (*Journal, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open journal %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketPending, bucketResolved} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "init journal buckets")
	}
	return &Journal{db: db}, nil
}

func key(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// Record stores a pending entry, assigning its id and timestamp when unset
func (j *Journal) Record(ctx context.Context, e *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.ID == 0 {
		e.ID = common.UUIDint64()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encode journal entry")
	}
	return j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).Put(key(e.ID), data)
	})
}

// Pending entries oldest first
func (j *Journal) Pending(ctx context.Context) ([]Entry, error) {
	return j.list(ctx, bucketPending)
}

// Resolved entries oldest first
func (j *Journal) Resolved(ctx context.Context) ([]Entry, error) {
	return j.list(ctx, bucketResolved)
}

func (j *Journal) list(ctx context.Context, bucket []byte) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries := make([]Entry, 0)
	err := j.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return errors.Wrapf(err, "decode journal entry %x", k)
			}
			entries = append(entries, e)
			return nil
		})
	})
	sort.SliceStable(entries, func(a, b int) bool { return entries[a].CreatedAt.Before(entries[b].CreatedAt) })
	return entries, err
}

// Count pending entries
func (j *Journal) Count() (int, error) {
	var n int
	err := j.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketPending).Stats().KeyN
		return nil
	})
	return n, err
}

// Resolve moves a pending entry to the resolved bucket
func (j *Journal) Resolve(ctx context.Context, id int64, note string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var e Entry
	err := j.db.Update(func(tx *bbolt.Tx) error {
		pending := tx.Bucket(bucketPending)
		data := pending.Get(key(id))
		if data == nil {
			return domain.NewNotFoundError("ReconcileEntry", id)
		}
		if err := json.Unmarshal(data, &e); err != nil {
			return errors.Wrapf(err, "decode journal entry %d", id)
		}
		now := time.Now()
		e.ResolvedAt = &now
		e.Note = note
		out, err := json.Marshal(&e)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketResolved).Put(key(id), out); err != nil {
			return err
		}
		return pending.Delete(key(id))
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
