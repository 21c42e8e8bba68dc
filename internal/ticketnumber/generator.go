// Package ticketnumber produces the human readable SMC-YYYYMMDD-NNN numbers
// and the record keys used for email-ingested tickets.
package ticketnumber

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// CounterStore abstraction over the ticket_counter table.
type CounterStore interface {
	// Next returns the incremented counter for the given YYYYMMDD key.
	Next(ctx context.Context, dateKey string) (int, error)
}

// Clock allows deterministic testing.
type Clock interface{ Now() time.Time }

type systemClock struct{ loc *time.Location }

func (c systemClock) Now() time.Time { return time.Now().In(c.loc) }

// SystemClock returns wall-clock time in loc.
func SystemClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return systemClock{loc: loc}
}

const (
	prefix         = "SMC"
	minCounterSize = 3
)

// Generator issues date-scoped sequential ticket numbers.
type Generator struct {
	store CounterStore
	clock Clock
}

// NewGenerator builds a generator.
func NewGenerator(store CounterStore, clk Clock) *Generator {
	return &Generator{store: store, clock: clk}
}

// Next returns the next ticket number for today.
func (g *Generator) Next(ctx context.Context) (string, error) {
	dateKey := g.clock.Now().Format("20060102")
	counter, err := g.store.Next(ctx, dateKey)
	if err != nil {
		return "", fmt.Errorf("ticket counter: %w", err)
	}
	return Format(dateKey, counter), nil
}

// Format renders a ticket number. Counters past 999 widen rather than wrap.
func Format(dateKey string, counter int) string {
	return fmt.Sprintf("%s-%s-%0*d", prefix, dateKey, minCounterSize, counter)
}

// EmailTicketID builds a TK-<base36 ms timestamp><random> record key.
func EmailTicketID(now time.Time) string {
	var sb strings.Builder
	sb.WriteString("TK-")
	sb.WriteString(strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36)))
	sb.WriteString(randomSuffix(5))
	return sb.String()
}

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randomSuffix(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			out[i] = alphabet[time.Now().UnixNano()%int64(len(alphabet))]
			continue
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out)
}
