// Package compare checks whether two files hold byte-identical content.
package compare

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// blockSize is the chunk read from each file per comparison step (64KB)
const blockSize = 64 * 1024

// Identical reports whether the files at a and b have the same content.
// Files of different size are never read. Errors are returned as
// *fs.PathError so callers can tell which file failed.
func Identical(a, b string) (bool, error) {
	infoA, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	if infoA.Size() != infoB.Size() {
		return false, nil
	}

	fa, err := os.Open(a)
	if err != nil {
		return false, err
	}
	defer fa.Close()

	fb, err := os.Open(b)
	if err != nil {
		return false, err
	}
	defer fb.Close()

	return identicalReaders(fa, fb)
}

// identicalReaders compares two streams in lock-step.
func identicalReaders(a, b io.Reader) (bool, error) {
	bufA := make([]byte, blockSize)
	bufB := make([]byte, blockSize)

	for {
		na, errA := io.ReadFull(a, bufA)
		nb, errB := io.ReadFull(b, bufB)

		if errA != nil && !isEOF(errA) {
			return false, errA
		}
		if errB != nil && !isEOF(errB) {
			return false, errB
		}

		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}

		doneA, doneB := isEOF(errA), isEOF(errB)
		if doneA || doneB {
			return doneA && doneB, nil
		}
	}
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
