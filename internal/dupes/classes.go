package dupes

import (
	"errors"
	"io/fs"
	"log"

	"github.com/lyallcooper/toolbox/internal/types"
)

// partitionIdentical splits files into equivalence classes of byte-identical
// content. Each file is compared against one representative per existing
// class and joins the first class it matches, so every file is compared at
// most once per class. Files that cannot be read are dropped; dropped counts
// them.
func partitionIdentical(files []*types.FileCandidate, identical Comparator) (classes [][]*types.FileCandidate, dropped int) {
	for _, file := range files {
		placed, failed := false, false

		for c := 0; c < len(classes) && !placed && !failed; {
			rep := classes[c][0]
			same, err := identical(rep.Path, file.Path)
			if err != nil {
				if failedPath(err) == rep.Path {
					// Representative became unreadable: drop it and retry
					// against the next member of its class.
					log.Printf("dupes: skipping %s: %v", rep.Path, err)
					dropped++
					classes[c] = classes[c][1:]
					if len(classes[c]) == 0 {
						classes = append(classes[:c], classes[c+1:]...)
					}
					continue
				}
				log.Printf("dupes: skipping %s: %v", file.Path, err)
				dropped++
				failed = true
				break
			}
			if same {
				classes[c] = append(classes[c], file)
				placed = true
				break
			}
			c++
		}

		if !placed && !failed {
			classes = append(classes, []*types.FileCandidate{file})
		}
	}
	return classes, dropped
}

// failedPath returns the path an I/O error refers to, or "" if unknown.
func failedPath(err error) string {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Path
	}
	return ""
}
