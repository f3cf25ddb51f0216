package warranty

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/proofguardlab/proofguard/internal/storage"
	"go.uber.org/zap"
)

const (
	serialSeed    = 625001
	serialCeiling = 699999
	serialPrefix  = "PG"
	logIDSeed     = 10000000
)

// SequenceGenerator issues human-facing serial codes and log identifiers
// from persisted monotonic counters. Both generators fail safe: when the
// counter store is unreadable they fall back to pseudo-random values in the
// same format instead of aborting the calling operation.
type SequenceGenerator struct {
	store   storage.KV
	clock   func() time.Time
	logger  *zap.Logger
	randInt func(n int) int
}

// NewSequenceGenerator builds a SequenceGenerator over the given store.
func NewSequenceGenerator(store storage.KV, clock func() time.Time, logger *zap.Logger) *SequenceGenerator {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SequenceGenerator{
		store:   store,
		clock:   clock,
		logger:  logger,
		randInt: rand.Intn,
	}
}

// NextSerial returns the next PG serial code. The counter seeds at 625001,
// increments before formatting, and wraps back to 625001 above 699999, so
// long-lived installations eventually reuse serials.
func (g *SequenceGenerator) NextSerial(ctx context.Context) string {
	value, err := g.loadCounter(ctx, storage.KeySerialCounter, serialSeed)
	if err == nil {
		value++
		if value > serialCeiling {
			value = serialSeed
		}
		err = g.store.Write(ctx, storage.KeySerialCounter, strconv.Itoa(value))
	}
	if err != nil {
		g.logger.Warn("serial counter unavailable, using fallback",
			zap.Error(err))
		return formatSerial(serialSeed - 1 + g.randInt(10000))
	}
	return formatSerial(value)
}

// NextLogID returns the next log identifier as 8 uppercase hex digits. The
// counter seeds at 10000000 and never wraps.
func (g *SequenceGenerator) NextLogID(ctx context.Context) string {
	value, err := g.loadCounter(ctx, storage.KeyLogCounter, logIDSeed)
	if err == nil {
		value++
		err = g.store.Write(ctx, storage.KeyLogCounter, strconv.Itoa(value))
	}
	if err != nil {
		g.logger.Warn("log counter unavailable, using fallback",
			zap.Error(err))
		return fallbackLogID(g.clock())
	}
	return fmt.Sprintf("%08X", value)
}

func (g *SequenceGenerator) loadCounter(ctx context.Context, key string, seed int) (int, error) {
	raw, ok, err := g.store.Read(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return seed, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("counter %q corrupted: %w", key, err)
	}
	return value, nil
}

func formatSerial(value int) string {
	return fmt.Sprintf("%s%06d", serialPrefix, value)
}

// fallbackLogID derives an identifier from the current time: Unix
// milliseconds in hex, last 8 digits, uppercase.
func fallbackLogID(now time.Time) string {
	hex := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 16))
	if len(hex) > 8 {
		return hex[len(hex)-8:]
	}
	return fmt.Sprintf("%08s", hex)
}
