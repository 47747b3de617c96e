package writer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/digistore-backend/internal/analytics/types"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
)

// Inserter is the slice of the BigQuery client the writer needs.
type Inserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

type Config struct {
	SalesTable string
	Backoff    Backoff
	Logger     *logger.Logger
}

// Backoff bounds the retry loop for transient insert failures.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

func (b Backoff) withDefaults() Backoff {
	if b.Attempts <= 0 {
		b.Attempts = 3
	}
	if b.Initial <= 0 {
		b.Initial = 250 * time.Millisecond
	}
	if b.Max < b.Initial {
		b.Max = max(b.Initial, 2*time.Second)
	}
	return b
}

func (b Backoff) delay(attempt int) time.Duration {
	d := b.Initial << (attempt - 1)
	if d <= 0 || d > b.Max {
		return b.Max
	}
	return d
}

// BigQueryWriter streams sale facts synchronously, so a returned nil means the
// rows reached BigQuery and the source message may be acked.
type BigQueryWriter struct {
	client  Inserter
	table   string
	backoff Backoff
	logg    *logger.Logger
	sleep   func(context.Context, time.Duration) error
}

func New(client Inserter, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("writer: bigquery client required")
	}
	table := strings.TrimSpace(cfg.SalesTable)
	if table == "" {
		return nil, errors.New("writer: sales table is required")
	}
	return &BigQueryWriter{
		client:  client,
		table:   table,
		backoff: cfg.Backoff.withDefaults(),
		logg:    cfg.Logger,
		sleep:   sleepCtx,
	}, nil
}

// InsertSales writes rows in one streaming insert, retrying transient
// failures. Each row carries its insert id so retries do not duplicate facts.
func (w *BigQueryWriter) InsertSales(ctx context.Context, rows ...types.SaleFactRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch := make([]any, len(rows))
	for i := range rows {
		batch[i] = &rows[i]
	}

	for attempt := 1; ; attempt++ {
		err := w.client.InsertRows(ctx, w.table, batch)
		if err == nil {
			return nil
		}
		if attempt >= w.backoff.Attempts || !Retryable(err) {
			return fmt.Errorf("insert %d rows into %s: %w", len(batch), w.table, err)
		}

		wait := w.backoff.delay(attempt)
		if w.logg != nil {
			w.logg.Warn(w.logg.WithFields(ctx, map[string]any{
				"table":   w.table,
				"attempt": attempt,
				"wait_ms": wait.Milliseconds(),
				"reason":  err.Error(),
			}), "analytics.insert_retry")
		}
		if err := w.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retryable reports whether every failure inside err is transient. Row
// errors count as transient only when all of their causes are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var pme cbigquery.PutMultiError
	if errors.As(err, &pme) {
		return len(pme) > 0 && allRetryable(len(pme), func(i int) error { return pme[i].Errors })
	}
	var rowErr *cbigquery.RowInsertionError
	if errors.As(err, &rowErr) {
		return len(rowErr.Errors) > 0 && allRetryable(len(rowErr.Errors), func(i int) error { return rowErr.Errors[i] })
	}
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return len(multi) > 0 && allRetryable(len(multi), func(i int) error { return multi[i] })
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return retryableHTTP[apiErr.Code]
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return retryableGRPC[st.Code()]
	}
	return false
}

func allRetryable(n int, at func(int) error) bool {
	for i := range n {
		if !Retryable(at(i)) {
			return false
		}
	}
	return true
}

var retryableHTTP = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var retryableGRPC = map[codes.Code]bool{
	codes.Aborted:           true,
	codes.DeadlineExceeded:  true,
	codes.Internal:          true,
	codes.ResourceExhausted: true,
	codes.Unavailable:       true,
}
