// Package allocator issues batch codes for (grade, date) buckets. It is
// the one canonical implementation shared by the manual, scanner and
// bulk flows: the server's answer is authoritative, the local counter is
// the advisory fallback, and the decision is awaited to completion
// before a code is ever shown or committed.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"rodlot/batchcode"
	"rodlot/grade"
	"rodlot/model"
)

// rolloverSeqMax is the highest next-sequence for which a differing
// effectiveDate from the server is believed to be a real rollover. A
// bigger sequence alongside a date change is stale noise and must not
// silently shift the operator's chosen date. Inherited threshold; do not
// widen without a new requirement.
const rolloverSeqMax = 5

// ErrSequenceOverflow means the bucket is full (sequence would pass
// 999). Wrapping back to 001 under the same date prefix would duplicate
// an existing label, so the operation fails and the operator has to
// pick a new date or grade.
var ErrSequenceOverflow = errors.New("sequence overflow: bucket has reached 999")

// ErrOfflineRisk means the server was unreachable and the caller has not
// yet accepted the duplicate-code risk of allocating from the local
// counter alone.
var ErrOfflineRisk = errors.New("server unreachable: offline allocation requires explicit consent")

// SequenceSource is the remote authority (the sheet script).
type SequenceSource interface {
	NextSequence(ctx context.Context, grade, yymmdd string) (*model.SeqData, error)
}

// SequenceStore is the durable local counter per bucket.
type SequenceStore interface {
	GetLocalSequence(bucketKey string) int
}

// Request describes one allocation.
type Request struct {
	Grade string // raw operator/scanner input; normalized here
	Date  string // YYYY-MM-DD
	// AllowOffline acknowledges the duplicate risk of the local-only
	// fallback. Without it an unreachable server aborts the allocation
	// with ErrOfflineRisk so the caller can ask the operator first.
	AllowOffline bool
	// Hint is a prefetched server answer for this same (grade, date),
	// consumed at most once. Nil means query the server now.
	Hint *model.SeqData
}

// Result is a resolved allocation. The caller persists StorageKey→Seq
// into the local cache after committing the record.
type Result struct {
	Code       string
	Seq        int
	Prefix     string // YYMMDD actually used in the code
	Date       string // YYYY-MM-DD, re-derived if the server rolled over
	StorageKey string
	Grade      string // normalized
	Offline    bool   // allocated from the local counter only
	Rollover   bool   // server moved the bucket to a different date
}

// Allocate resolves one batch code. Server answer wins outright when
// available — not max(local, server) — so sequence numbers freed by
// deletions get reused and physical label numbering stays dense.
func Allocate(ctx context.Context, src SequenceSource, store SequenceStore, req Request) (*Result, error) {
	normGrade, err := grade.Normalize(req.Grade)
	if err != nil {
		return nil, err
	}
	localPrefix, err := batchcode.DatePrefix(req.Date)
	if err != nil {
		return nil, err
	}
	storageKey := batchcode.StorageKey(localPrefix, normGrade)

	seqData := req.Hint
	if seqData == nil {
		seqData, err = src.NextSequence(ctx, normGrade, localPrefix)
		if err != nil {
			log.Printf("WARN: [Allocator] sequence query failed for %s: %v", storageKey, err)
			seqData = nil
		}
	}

	if seqData == nil {
		return allocateOffline(store, req, normGrade, localPrefix, storageKey)
	}

	next := seqData.MaxSeq + 1
	localNext := store.GetLocalSequence(storageKey) + 1
	if localNext != next {
		log.Printf("INFO: [Allocator] local counter drifted for %s (local next %d, server next %d); following server", storageKey, localNext, next)
	}

	prefix := localPrefix
	date := req.Date
	rollover := false
	if seqData.EffectiveDate != "" && seqData.EffectiveDate != localPrefix {
		if next <= rolloverSeqMax {
			// The server moved this bucket to a new date (period change
			// or full bucket). Code prefix and logical date follow it.
			rolled, convErr := batchcode.DateFromPrefix(seqData.EffectiveDate)
			if convErr != nil {
				return nil, fmt.Errorf("server sent unusable effective date: %w", convErr)
			}
			prefix = seqData.EffectiveDate
			date = rolled
			storageKey = batchcode.StorageKey(prefix, normGrade)
			rollover = true
			log.Printf("INFO: [Allocator] server rollover: bucket %s now files under %s", localPrefix, prefix)
		} else {
			log.Printf("WARN: [Allocator] ignoring effective date %s for %s: sequence %d too high for a rollover", seqData.EffectiveDate, storageKey, next)
		}
	}

	if next > batchcode.MaxSeq {
		return nil, fmt.Errorf("bucket %s: %w", storageKey, ErrSequenceOverflow)
	}

	return &Result{
		Code:       batchcode.Format(prefix, next),
		Seq:        next,
		Prefix:     prefix,
		Date:       date,
		StorageKey: storageKey,
		Grade:      normGrade,
		Rollover:   rollover,
	}, nil
}

func allocateOffline(store SequenceStore, req Request, normGrade, localPrefix, storageKey string) (*Result, error) {
	if !req.AllowOffline {
		return nil, ErrOfflineRisk
	}

	next := store.GetLocalSequence(storageKey) + 1
	if next > batchcode.MaxSeq {
		return nil, fmt.Errorf("bucket %s: %w", storageKey, ErrSequenceOverflow)
	}

	log.Printf("WARN: [Allocator] offline allocation for %s: seq %d issued from local counter only", storageKey, next)
	return &Result{
		Code:       batchcode.Format(localPrefix, next),
		Seq:        next,
		Prefix:     localPrefix,
		Date:       req.Date,
		StorageKey: storageKey,
		Grade:      normGrade,
		Offline:    true,
	}, nil
}
