// README: zstd-compressed snapshot log: a JSON header line followed by one JSON snapshot per line.
package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"ridesim/internal/sim"
)

const Version = 1

var ErrVersion = errors.New("unsupported snapshot version")

type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// Writer appends snapshots to a compressed file. It is not safe for
// concurrent use.
type Writer struct {
	f   *os.File
	enc *zstd.Encoder
	bw  *bufio.Writer
	n   int
}

func Create(path string, h Header) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w := &Writer{f: f, enc: enc, bw: bufio.NewWriterSize(enc, 256*1024)}

	h.Version = Version
	if err := w.writeLine(h); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return w, nil
}

func (w *Writer) Write(snap sim.Snapshot) error {
	if err := w.writeLine(snap); err != nil {
		return fmt.Errorf("write snapshot tick %d: %w", snap.Tick, err)
	}
	w.n++
	return nil
}

// Count reports how many snapshots were written.
func (w *Writer) Count() int { return w.n }

func (w *Writer) writeLine(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.bw.Write(b); err != nil {
		return err
	}
	return w.bw.WriteByte('\n')
}

// Close flushes buffered data, finishes the zstd frame and closes the file.
func (w *Writer) Close() error {
	err := w.bw.Flush()
	if cerr := w.enc.Close(); err == nil {
		err = cerr
	}
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReadFile returns the header and every snapshot stored at path.
func ReadFile(path string) (Header, []sim.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer f.Close()
	return Read(f)
}

func Read(r io.Reader) (Header, []sim.Snapshot, error) {
	var h Header
	dec, err := zstd.NewReader(r)
	if err != nil {
		return h, nil, err
	}
	defer dec.Close()

	jd := json.NewDecoder(bufio.NewReaderSize(dec, 256*1024))
	if err := jd.Decode(&h); err != nil {
		return h, nil, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return h, nil, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}

	var out []sim.Snapshot
	for {
		var snap sim.Snapshot
		if err := jd.Decode(&snap); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return h, out, fmt.Errorf("decode snapshot %d: %w", len(out), err)
		}
		out = append(out, snap)
	}
	return h, out, nil
}
