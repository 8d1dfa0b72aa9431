package queue

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/franz/bibcluster/internal/model"
	"github.com/franz/bibcluster/internal/util"
)

const maxLineSize = 16 << 20

// LineStats counts the lines of a JSONL stream.
type LineStats struct {
	Lines   int
	Valid   int
	Invalid int
}

// ReadLines validates every non-blank line of a JSONL stream and hands the
// decoded records to fn. Invalid lines are logged and skipped; an error from
// fn stops the scan.
func ReadLines(ctx context.Context, r io.Reader, v *Validator, fn func(*model.Record) error) (LineStats, error) {
	var stats LineStats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Lines++
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		rec, err := v.Decode(line)
		if err != nil {
			if !errors.Is(err, util.ErrInvalidRecord) {
				return stats, err
			}
			stats.Invalid++
			util.WarnLog("Line %d: %v", stats.Lines, err)
			continue
		}
		stats.Valid++
		if err := fn(rec); err != nil {
			return stats, err
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read line %d: %w", stats.Lines+1, err)
	}
	return stats, nil
}
