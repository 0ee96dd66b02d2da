package store

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// DefaultSpoolThreshold is the largest upload body buffered in memory to
// make the fallback retry replayable. Larger or unknown-size bodies are
// spooled to a temp file.
const DefaultSpoolThreshold int64 = 16 << 20 // 16 MiB

type spooledBody struct {
	reader  io.ReadSeeker
	size    int64
	cleanup func() error
}

func (b *spooledBody) Close() error {
	if b.cleanup == nil {
		return nil
	}
	return b.cleanup()
}

// spool copies src into a seekable buffer. A non-negative size is enforced:
// a shorter or longer body is an error.
func spool(src io.Reader, size, threshold int64) (*spooledBody, error) {
	if threshold <= 0 {
		threshold = DefaultSpoolThreshold
	}

	if size >= 0 && size <= threshold {
		data, err := io.ReadAll(io.LimitReader(src, size+1))
		if err != nil {
			return nil, err
		}
		if int64(len(data)) != size {
			return nil, fmt.Errorf("body is %s than the declared %d bytes", longerOrShorter(int64(len(data)), size), size)
		}
		return &spooledBody{reader: bytes.NewReader(data), size: size}, nil
	}

	f, err := os.CreateTemp("", "twinpane-upload-*")
	if err != nil {
		return nil, err
	}
	remove := func() error {
		name := f.Name()
		closeErr := f.Close()
		rmErr := os.Remove(name)
		if closeErr != nil {
			return fmt.Errorf("close temp file: %w", closeErr)
		}
		if rmErr != nil {
			return fmt.Errorf("remove temp file: %w", rmErr)
		}
		return nil
	}

	n, err := io.Copy(f, src)
	if err != nil {
		_ = remove()
		return nil, err
	}
	if size >= 0 && n != size {
		_ = remove()
		return nil, fmt.Errorf("body is %s than the declared %d bytes", longerOrShorter(n, size), size)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = remove()
		return nil, err
	}
	return &spooledBody{reader: f, size: n, cleanup: remove}, nil
}

func longerOrShorter(got, want int64) string {
	if got > want {
		return "longer"
	}
	return "shorter"
}
