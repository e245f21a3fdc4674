package digest

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"
)

// ErrUnsupportedAlgorithm is returned by ParseAlgorithm for unknown names
var ErrUnsupportedAlgorithm = errors.New("hash algorithm is not supported")

// DefaultBufferSize is the chunk size used when streaming file contents
const DefaultBufferSize = 64 * 1024

// Algorithm is the closed set of supported digest algorithms
type Algorithm int

const (
	SHA256 Algorithm = iota
	SHA384
	SHA512
	SHA512_256
)

// Algorithms lists every supported algorithm in display order
var Algorithms = []Algorithm{SHA256, SHA384, SHA512, SHA512_256}

// String returns the name accepted on the command line
func (a Algorithm) String() string {
	switch a {
	case SHA256:
		return "SHA256"
	case SHA384:
		return "SHA384"
	case SHA512:
		return "SHA512"
	case SHA512_256:
		return "SHA512_256"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

// Size returns the digest length in bytes
func (a Algorithm) Size() int {
	switch a {
	case SHA256, SHA512_256:
		return 32
	case SHA384:
		return 48
	case SHA512:
		return 64
	default:
		return 0
	}
}

// New returns a fresh incremental accumulator for the algorithm
func (a Algorithm) New() hash.Hash {
	switch a {
	case SHA384:
		return sha512.New384()
	case SHA512:
		return sha512.New()
	case SHA512_256:
		return sha512.New512_256()
	default:
		return sha256.New()
	}
}

// SupportedNames returns "[SHA256, SHA384, SHA512, SHA512_256]"
func SupportedNames() string {
	names := make([]string, 0, len(Algorithms))
	for _, a := range Algorithms {
		names = append(names, a.String())
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// ParseAlgorithm resolves a case-insensitive algorithm name.
// An empty name selects SHA256.
func ParseAlgorithm(name string) (Algorithm, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if upper == "" {
		return SHA256, nil
	}
	for _, a := range Algorithms {
		if a.String() == upper {
			return a, nil
		}
	}
	return SHA256, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, upper)
}

// Digest is the finalized output of an Algorithm over a file's bytes
type Digest []byte

// Key returns the digest bytes as a comparable map key
func (d Digest) Key() string {
	return string(d)
}

// Hex returns the lowercase hex encoding
func (d Digest) Hex() string {
	return hex.EncodeToString(d)
}

func (d Digest) String() string {
	return d.Hex()
}

// Hasher streams readers through one algorithm.
// A Hasher reuses its buffer and is not safe for concurrent use.
type Hasher struct {
	alg Algorithm
	buf []byte
}

// NewHasher creates a Hasher reading in chunks of bufferSize bytes.
// A non-positive bufferSize selects DefaultBufferSize.
func NewHasher(alg Algorithm, bufferSize int) *Hasher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hasher{
		alg: alg,
		buf: make([]byte, bufferSize),
	}
}

// Algorithm returns the algorithm the hasher was built for
func (h *Hasher) Algorithm() Algorithm {
	return h.alg
}

// Sum reads r to EOF and returns its digest and the number of bytes read.
// Any read error aborts the sum and is returned unchanged.
func (h *Hasher) Sum(r io.Reader) (Digest, int64, error) {
	acc := h.alg.New()
	var total int64
	for {
		n, err := r.Read(h.buf)
		if n > 0 {
			acc.Write(h.buf[:n])
			total += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, total, err
		}
	}
	return Digest(acc.Sum(nil)), total, nil
}
