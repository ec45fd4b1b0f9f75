package domain

import (
	"fmt"
	"time"
)

// EntityType tags which canonical entity a change record mutated.
type EntityType string

const (
	EntityPost    EntityType = "post"
	EntityFollow  EntityType = "follow"
	EntityComment EntityType = "comment"
	EntityLike    EntityType = "like"
)

// Op is the mutation kind carried by a change record.
type Op string

const (
	OpInsert Op = "insert"
	OpRemove Op = "remove"
)

// Delta is the counter adjustment implied by the op: +1 for insert, -1 for
// remove.
func (o Op) Delta() int64 {
	if o == OpRemove {
		return -1
	}
	return 1
}

// ChangeRecord is a strongly-typed change-stream record, decoded once at the
// stream boundary. Exactly one payload field matching EntityType is set.
// Records with unrecognized shapes are dropped before a ChangeRecord is ever
// constructed.
type ChangeRecord struct {
	// ID uniquely identifies the record across redeliveries.
	ID string

	// Seq is the record's position in its log partition. Ordering is
	// guaranteed only within a partition.
	Seq int64

	EntityType EntityType
	Op         Op
	OccurredAt time.Time

	Post    *Post
	Follow  *FollowEdge
	Comment *Comment
	Like    *Like
}

// Key returns a compact identity for logs and batch reports.
func (r *ChangeRecord) Key() string {
	return fmt.Sprintf("%s/%s seq=%d id=%s", r.EntityType, r.Op, r.Seq, r.ID)
}

// RecordResult is the outcome of processing one change record within a batch.
type RecordResult struct {
	Seq int64
	Key string
	Err error

	// Dropped marks a record that failed permanently (e.g. missing embedded
	// metadata) and must not be redelivered.
	Dropped bool
}

// BatchReport aggregates per-record outcomes for one delivery batch. One
// record's failure never fails its siblings; the report is the only place
// failures surface beyond logs.
type BatchReport struct {
	Results []RecordResult
}

// Failed returns the results for records that errored, dropped or not.
func (b *BatchReport) Failed() []RecordResult {
	var failed []RecordResult
	for _, res := range b.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Retryable reports whether any record failed transiently, meaning the batch
// must be redelivered from CheckpointSeq.
func (b *BatchReport) Retryable() bool {
	for _, res := range b.Results {
		if res.Err != nil && !res.Dropped {
			return true
		}
	}
	return false
}

// CheckpointSeq returns the highest sequence the consumer may acknowledge:
// the last record before the first transiently-failed one. Dropped records
// are skipped over since redelivery cannot help them.
func (b *BatchReport) CheckpointSeq() int64 {
	var seq int64
	for _, res := range b.Results {
		if res.Err != nil && !res.Dropped {
			break
		}
		seq = res.Seq
	}
	return seq
}
