package usecase

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// MaxReceiptLen is the gateway's limit for the receipt field.
const MaxReceiptLen = 40

// Receipt builds "rcpt_<user8>_<ms36>_<seq36>". The same inputs always yield the
// same receipt; distinct (user, millisecond, seq) triples never collide.
func Receipt(userID string, at time.Time, seq uint64) string {
	short := strings.ReplaceAll(userID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	if short == "" {
		short = "anon"
	}
	r := "rcpt_" + short + "_" + strconv.FormatInt(at.UnixMilli(), 36) + "_" + strconv.FormatUint(seq, 36)
	if len(r) > MaxReceiptLen {
		r = r[:MaxReceiptLen]
	}
	return r
}

// ReceiptGenerator feeds Receipt with the clock and a process-wide counter.
type ReceiptGenerator struct {
	seq atomic.Uint64
	now func() time.Time
}

func NewReceiptGenerator(now func() time.Time) *ReceiptGenerator {
	if now == nil {
		now = time.Now
	}
	return &ReceiptGenerator{now: now}
}

func (g *ReceiptGenerator) Next(userID string) string {
	return Receipt(userID, g.now(), g.seq.Add(1))
}
