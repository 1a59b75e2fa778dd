// Package acceptor compares run output against a directory of accepted outputs
// and promotes new output into that directory.
//
// The accepted set is every file in the directory matching acc*.txt. It is
// append-only: promotion adds acc_<i>.txt at the lowest free index and never
// rewrites or removes an existing member.
package acceptor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/mod/sumdb/dirhash"
)

const (
	FilePattern = "acc*.txt"
	FilePrefix  = "acc"
	FileExt     = ".txt"

	chunkSize = 1024
)

var (
	ErrNoAcceptedDir = errors.New("accepted output directory does not exist")
	ErrNotAccepted   = errors.New("output is not accepted")
)

// Outcome describes a successful comparison
type Outcome struct {
	Matched  string   // Name of the accepted file equal to the candidate
	Promoted string   // Name of the file the candidate was promoted to
	Members  []string // Accepted set after the comparison
	Digest   string   // dirhash digest of the accepted set after the comparison
}

// Comparator checks candidate outputs against accepted sets
type Comparator struct {
	log log.Logger
}

// New creates a new Comparator
func New(logger log.Logger) *Comparator {
	if logger == nil {
		logger = log.New()
	}
	return &Comparator{log: logger}
}

// Compare looks for an accepted file in dir with exactly the content of
// candidate. When none matches and promote is set, the candidate is copied into
// the set under the next free name. Without promote the result is ErrNotAccepted.
func (c *Comparator) Compare(candidate, dir string, promote bool) (*Outcome, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNoAcceptedDir, dir)
	}

	members, err := Members(dir)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{}
	for _, name := range members {
		different, err := IsDifferent(filepath.Join(dir, name), candidate)
		if err != nil {
			c.log.Warn("Failed to compare accepted output", "file", name, "err", err)
		}
		if !different {
			c.log.Debug("Output matched accepted file", "file", name, "dir", dir)
			outcome.Matched = name
			break
		}
	}

	if outcome.Matched == "" {
		if !promote {
			return nil, ErrNotAccepted
		}
		name := NextName(members)
		if err := copyExclusive(candidate, filepath.Join(dir, name)); err != nil {
			return nil, fmt.Errorf("failed to promote output to %s: %w", name, err)
		}
		c.log.Info("Promoted output to accepted set", "file", name, "dir", dir)
		outcome.Promoted = name
		members = append(members, name)
	}

	outcome.Members = members
	digest, err := Digest(dir, members)
	if err != nil {
		c.log.Warn("Failed to hash accepted set", "dir", dir, "err", err)
	}
	outcome.Digest = digest
	return outcome, nil
}

// Members lists the accepted files of dir in directory order
func Members(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read accepted output directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(FilePattern, entry.Name()); ok {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// NextName returns acc_<i>.txt for the lowest i not already taken
func NextName(members []string) string {
	taken := make(map[string]struct{}, len(members))
	for _, m := range members {
		taken[m] = struct{}{}
	}
	for i := 0; ; i++ {
		name := fmt.Sprintf("%s_%d%s", FilePrefix, i, FileExt)
		if _, ok := taken[name]; !ok {
			return name
		}
	}
}

// Digest hashes the named members of dir
func Digest(dir string, members []string) (string, error) {
	return dirhash.Hash1(members, func(name string) (io.ReadCloser, error) {
		return os.Open(filepath.Join(dir, name))
	})
}

// IsDifferent compares two files chunk by chunk. Content and length must match
// exactly; no line ending or whitespace normalisation is done. A file that
// cannot be read counts as different, and the read error is returned.
func IsDifferent(a, b string) (bool, error) {
	fa, err := os.Open(a)
	if err != nil {
		return true, err
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return true, err
	}
	defer fb.Close()

	bufA := make([]byte, chunkSize)
	bufB := make([]byte, chunkSize)
	for {
		na, err := readChunk(fa, bufA)
		if err != nil {
			return true, err
		}
		nb, err := readChunk(fb, bufB)
		if err != nil {
			return true, err
		}
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return true, nil
		}
		if na == 0 {
			return false, nil
		}
	}
}

// readChunk fills buf unless the reader ends first
func readChunk(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return n, nil
	}
	return n, err
}

// copyExclusive copies src to a new file dst, failing if dst already exists
func copyExclusive(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
