package git

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hhatto/gocloc"
	"github.com/samber/lo"
)

// CountLOC returns the physical line count of each path, relative to root.
// gocloc handles recognized languages; other files fall back to a plain
// line count.
func CountLOC(root string, paths []string) (map[string]int64, error) {
	result := make(map[string]int64, len(paths))
	if len(paths) == 0 {
		return result, nil
	}

	absolute := lo.Map(paths, func(p string, _ int) string { return filepath.Join(root, p) })

	processor := gocloc.NewProcessor(gocloc.NewDefinedLanguages(), gocloc.NewClocOptions())
	loc, err := processor.Analyze(absolute)
	if err != nil {
		return nil, fmt.Errorf("error computing lines of code: %w", err)
	}

	for i, p := range paths {
		if floc, ok := loc.Files[absolute[i]]; ok {
			result[p] = int64(floc.Code + floc.Comments + floc.Blanks)
			continue
		}
		n, err := countLines(absolute[i])
		if err != nil {
			return nil, fmt.Errorf("count lines of %s: %w", p, err)
		}
		result[p] = n
	}

	return result, nil
}

func countLines(path string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	var n int64
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}
