package client

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const readChunkSize = 32 * 1024

// Consume reads the frame stream from r into d until EOF or
// until ctx is done. A final unterminated line is dispatched at EOF.
func Consume(ctx context.Context, r io.Reader, d *Demuxer) error {
	buf := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf)
		if n > 0 {
			_, _ = d.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			d.Flush()
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("failed to read frame stream: %w", err)
		}
	}
}
