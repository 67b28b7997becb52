package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ranc1/marketmaker/internal/domain"
)

// BlobWriter is the slice of the writer API the archiver uses.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BookSource yields the current snapshot of every tracked venue.
type BookSource interface {
	All() []domain.BookSnapshot
}

// BookArchiver samples the live books on a fixed interval, buffers the
// samples as JSONL, and uploads one object per hour at
// books/YYYY-MM-DD/HH.jsonl. A failed upload keeps the buffer so the samples
// go out with the next flush.
type BookArchiver struct {
	writer   BlobWriter
	source   BookSource
	interval time.Duration
	prefix   string
	logger   *slog.Logger

	buf     bytes.Buffer
	bufHour time.Time
	now     func() time.Time
}

// NewBookArchiver creates a BookArchiver sampling the source every interval.
func NewBookArchiver(writer BlobWriter, source BookSource, interval time.Duration, logger *slog.Logger) *BookArchiver {
	if interval <= 0 {
		interval = time.Minute
	}
	return &BookArchiver{
		writer:   writer,
		source:   source,
		interval: interval,
		prefix:   "books",
		logger:   logger.With(slog.String("component", "book_archiver")),
		now:      time.Now,
	}
}

// Run samples and flushes until the context is cancelled, then makes a final
// best-effort flush of whatever is buffered.
func (a *BookArchiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := a.flush(flushCtx); err != nil {
				a.logger.Error("final flush failed", slog.String("error", err.Error()))
			}
			return ctx.Err()
		case <-ticker.C:
			a.sample()
			if err := a.flushIfDue(ctx); err != nil {
				a.logger.Error("flush failed", slog.String("error", err.Error()))
			}
		}
	}
}

// sample appends one JSONL line per venue to the buffer.
func (a *BookArchiver) sample() {
	now := a.now()
	hour := now.Truncate(time.Hour)
	if a.buf.Len() == 0 {
		a.bufHour = hour
	}

	for _, snap := range a.source.All() {
		if snap.UpdatedAt.IsZero() {
			continue
		}
		line, err := json.Marshal(snap)
		if err != nil {
			a.logger.Error("marshal snapshot", slog.String("venue", snap.Venue), slog.String("error", err.Error()))
			continue
		}
		a.buf.Write(line)
		a.buf.WriteByte('\n')
	}
}

// flushIfDue uploads the buffer once the clock has moved past the hour the
// buffer was opened in.
func (a *BookArchiver) flushIfDue(ctx context.Context) error {
	if a.buf.Len() == 0 {
		return nil
	}
	if a.now().Truncate(time.Hour).Equal(a.bufHour) {
		return nil
	}
	return a.flush(ctx)
}

func (a *BookArchiver) flush(ctx context.Context) error {
	if a.buf.Len() == 0 {
		return nil
	}

	path := fmt.Sprintf("%s/%s/%02d.jsonl", a.prefix, a.bufHour.Format("2006-01-02"), a.bufHour.Hour())
	size := int64(a.buf.Len())
	reader := bytes.NewReader(a.buf.Bytes())

	var err error
	if size > minPartSize {
		err = a.writer.PutMultipart(ctx, path, reader, minPartSize)
	} else {
		err = a.writer.Put(ctx, path, reader, "application/x-ndjson")
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive books upload %s: %w", path, err)
	}

	a.logger.Info("book archive uploaded",
		slog.String("path", path),
		slog.Int64("bytes", size),
	)
	a.buf.Reset()
	a.bufHour = a.now().Truncate(time.Hour)
	return nil
}
