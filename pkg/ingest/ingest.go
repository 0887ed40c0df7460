// Package ingest feeds arbitrary data sources into a fortress accumulator.
// It is a thin collaborator around sponge.Absorb: chunking, length framing
// and file handling live here, the accumulator itself has no I/O.
package ingest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	boxochunker "github.com/ipfs/boxo/chunker"

	"github.com/fortresskit/fortress/pkg/sponge"
)

// DefaultChunkSize is the streaming chunk size. It is a multiple of the
// sponge rate so that chunked ingestion of a stream absorbs identically to
// a single-shot absorb of the same bytes.
const DefaultChunkSize = 256 * 1024

var ErrChunkSize = errors.New("ingest: chunk size must be a positive multiple of the sponge rate")

// Raw absorbs data as-is, no framing.
func Raw(s *sponge.State, data []byte) {
	s.Absorb(data)
}

// String absorbs an 8-byte little-endian length prefix followed by the
// string bytes, so "abc" and "abc\x00" cannot collide with each other's
// continuations.
func String(s *sponge.State, str string) {
	absorbFramed(s, []byte(str))
}

// Bytes absorbs a byte slice with the same length framing as String.
func Bytes(s *sponge.State, data []byte) {
	absorbFramed(s, data)
}

func absorbFramed(s *sponge.State, data []byte) {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(data)))
	s.Absorb(lenBuf[:])
	s.Absorb(data)
}

// Reader streams r into the accumulator in DefaultChunkSize chunks and
// returns the number of bytes absorbed.
func Reader(s *sponge.State, r io.Reader) (int64, error) {
	return ReaderSize(s, r, DefaultChunkSize)
}

// ReaderSize streams r in chunks of the given size. The size must be a
// positive multiple of sponge.RateBytes; anything else would make the digest
// depend on the chunking instead of the content.
func ReaderSize(s *sponge.State, r io.Reader, chunkSize int64) (int64, error) {
	if chunkSize <= 0 || chunkSize%sponge.RateBytes != 0 {
		return 0, ErrChunkSize
	}

	splitter := boxochunker.NewSizeSplitter(r, chunkSize)
	var total int64
	for {
		chunk, err := splitter.NextBytes()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("read chunk: %w", err)
		}
		s.Absorb(chunk)
		total += int64(len(chunk))
	}
}

// File absorbs the contents of the named file in streaming chunks. The
// returned error is only about opening and reading; the accumulator has no
// failure modes of its own.
func File(s *sponge.State, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	n, err := Reader(s, f)
	if err != nil {
		return n, fmt.Errorf("absorb %s: %w", path, err)
	}
	return n, nil
}
