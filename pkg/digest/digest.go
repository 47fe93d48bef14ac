// Package digest fingerprints the files a run depends on, so the log shows
// which executable and configs were actually used.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

const AlgorithmSHA256 = "sha256"

// Digest is represented as "<algorithm>:<hex>".
type Digest struct {
	Algorithm string
	Sum       string
}

func (d Digest) IsZero() bool {
	return d.Algorithm == "" && d.Sum == ""
}

func (d Digest) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Algorithm + ":" + d.Sum
}

// Short is the algorithm and the first 12 hex digits.
func (d Digest) Short() string {
	if len(d.Sum) <= 12 {
		return d.String()
	}
	return d.Algorithm + ":" + d.Sum[:12]
}

func Parse(raw string) (Digest, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Digest{}, nil
	}

	algorithm, sum, ok := strings.Cut(raw, ":")
	if !ok || strings.TrimSpace(algorithm) == "" || strings.TrimSpace(sum) == "" {
		return Digest{}, fmt.Errorf("invalid digest %q (expected algorithm:sum)", raw)
	}
	if _, err := hex.DecodeString(sum); err != nil {
		return Digest{}, fmt.Errorf("invalid digest %q: %w", raw, err)
	}
	return Digest{Algorithm: algorithm, Sum: strings.ToLower(sum)}, nil
}

// File returns the SHA-256 digest of the regular file at path.
func File(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("open file %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Digest{}, fmt.Errorf("hash file %s: %w", path, err)
	}
	return Digest{Algorithm: AlgorithmSHA256, Sum: hex.EncodeToString(h.Sum(nil))}, nil
}

// Named is a digest labelled with what was hashed.
type Named struct {
	Name   string
	Path   string
	Digest Digest
	Err    error
}

// Files hashes each labelled path. A file that cannot be read is reported
// through Named.Err rather than failing the whole set.
func Files(paths map[string]string, order ...string) []Named {
	out := make([]Named, 0, len(order))
	for _, name := range order {
		path, ok := paths[name]
		if !ok || path == "" {
			continue
		}
		d, err := File(path)
		out = append(out, Named{Name: name, Path: path, Digest: d, Err: err})
	}
	return out
}
