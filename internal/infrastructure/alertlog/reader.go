package alertlog

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"

	"AlertEnricher/internal/domain"
	"AlertEnricher/internal/ports"
)

// Wazuh alerts embed full_log and decoder output, so lines can be far past bufio's 64 KiB default.
const maxLineBytes = 8 << 20

// Reader scans a newline-delimited JSON alert log from the start on every call.
type Reader struct {
	path    string
	logger  *slog.Logger
	maxLine int
}

var _ ports.AlertSource = (*Reader)(nil)

// NewReader binds the reader to an alert log path.
func NewReader(path string, log *slog.Logger) *Reader {
	return &Reader{path: path, logger: log, maxLine: maxLineBytes}
}

// Path returns the watched log file.
func (r *Reader) Path() string { return r.path }

// Records returns a lazy sequence over the log. Malformed lines surface as
// *domain.ParseError values and iteration continues past them; that
// includes lines longer than the line limit.
func (r *Reader) Records(ctx context.Context) (iter.Seq2[domain.AlertRecord, error], error) {
	info, err := os.Stat(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrSourceUnavailable
		}
		return nil, fmt.Errorf("stat %s: %w", r.path, err)
	}
	if info.Size() == 0 {
		return nil, domain.ErrSourceUnavailable
	}

	return func(yield func(domain.AlertRecord, error) bool) {
		f, err := os.Open(r.path)
		if err != nil {
			yield(domain.AlertRecord{}, fmt.Errorf("open %s: %w", r.path, err))
			return
		}
		defer f.Close()

		br := bufio.NewReaderSize(f, 64*1024)
		var buf []byte
		line := 0
		for {
			raw, tooLong, err := nextLine(br, buf, r.maxLine)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(domain.AlertRecord{}, fmt.Errorf("read %s: %w", r.path, err))
				return
			}
			buf = raw[:0]
			line++

			if err := ctx.Err(); err != nil {
				yield(domain.AlertRecord{}, err)
				return
			}

			if tooLong {
				r.debug("skip oversized line", "line", line, "limit", r.maxLine)
				if !yield(domain.AlertRecord{}, &domain.ParseError{Line: line, Err: fmt.Errorf("line exceeds %d bytes", r.maxLine)}) {
					return
				}
				continue
			}

			text := bytes.TrimSpace(raw)
			if len(text) == 0 {
				continue
			}

			rec, err := ParseLine(text)
			if err != nil {
				r.debug("skip malformed line", "line", line, "error", err)
				if !yield(domain.AlertRecord{}, &domain.ParseError{Line: line, Err: err}) {
					return
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}, nil
}

// nextLine reads up to and including the next newline into buf. A line
// longer than limit is consumed to its end but not kept, and tooLong is set.
// io.EOF is returned only once no bytes remain.
func nextLine(br *bufio.Reader, buf []byte, limit int) (line []byte, tooLong bool, err error) {
	buf = buf[:0]
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(bytes.TrimRight(chunk, "\r\n")) > limit {
				tooLong = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}

		switch {
		case err == nil:
			return buf, tooLong, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(buf) == 0 && !tooLong {
				return buf, false, io.EOF
			}
			return buf, tooLong, nil
		default:
			return buf, false, err
		}
	}
}

func (r *Reader) debug(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
