package segment

import (
	"fmt"
	"path/filepath"
)

// GenerationDir is the directory holding every partial index of merge
// generation gen under root.
func GenerationDir(root string, gen int) string {
	return filepath.Join(root, fmt.Sprintf("gen_%03d", gen))
}

// PartPath is the artifact at position pos of generation gen.
func PartPath(root string, gen, pos int) string {
	return filepath.Join(GenerationDir(root, gen), fmt.Sprintf("part_%06d%s", pos, Extension))
}
