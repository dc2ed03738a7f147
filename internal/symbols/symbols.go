// internal/symbols/symbols.go
//
// Card alphabet management.
//
// Responsibilities:
//   - Load the list of card faces from an environment-provided file or fall
//     back to the embedded default (assets/symbols.txt).
//   - Hand out the first n faces for an n-pair board.
//
// Initialization behavior (Init):
//   1. If a path is given (SYMBOLS_FILE in config), read faces from that file.
//   2. Otherwise use the embedded list.
//
// Constraints:
//   • One face per line; blank lines and lines starting with '#' are skipped.
//   • Faces must be distinct.
//   • Initialization is run once (sync.Once).

package symbols

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/robalobadob/concentration/assets"
)

var (
	initOnce   sync.Once
	faces      []string
	initialErr error
)

// Init loads the alphabet exactly once. An empty path selects the
// embedded list.
func Init(path string) error {
	initOnce.Do(func() {
		faces, initialErr = Load(path)
	})
	return initialErr
}

// Load reads the faces from path, or the embedded list when path is empty.
func Load(path string) ([]string, error) {
	if path == "" {
		list, err := assets.SymbolList()
		if err != nil {
			return nil, fmt.Errorf("symbols: embedded list: %w", err)
		}
		return validate(list)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("symbols: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads one face per line.
func Parse(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		out = append(out, s)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return validate(out)
}

func validate(list []string) ([]string, error) {
	if len(list) == 0 {
		return nil, errors.New("symbols: list is empty")
	}
	seen := make(map[string]struct{}, len(list))
	for _, s := range list {
		if _, dup := seen[s]; dup {
			return nil, fmt.Errorf("symbols: duplicate face %q", s)
		}
		seen[s] = struct{}{}
	}
	return list, nil
}

// Pick returns the first n faces.
func Pick(n int) ([]string, error) {
	if n < 1 || n > len(faces) {
		return nil, fmt.Errorf("symbols: need %d faces, have %d", n, len(faces))
	}
	return append([]string(nil), faces[:n]...), nil
}

// Count reports how many faces are loaded.
func Count() int { return len(faces) }
