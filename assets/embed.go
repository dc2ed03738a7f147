// assets/embed.go
//
// Files compiled into the binary: the default card alphabet and the SQL
// migrations for the results archive.

package assets

import (
	"bufio"
	"embed"
	"io/fs"
	"strings"
)

//go:embed symbols.txt sql/*.sql
var FS embed.FS

func readLines(name string) ([]string, error) {
	f, err := FS.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		out = append(out, s)
	}
	return out, sc.Err()
}

// SymbolList returns the embedded card faces in file order.
func SymbolList() ([]string, error) {
	return readLines("symbols.txt")
}

// Migrations exposes the sql/ directory with paths relative to it.
func Migrations() fs.FS {
	sub, err := fs.Sub(FS, "sql")
	if err != nil {
		// sql/ is embedded above; Sub only fails on an invalid path.
		panic(err)
	}
	return sub
}
