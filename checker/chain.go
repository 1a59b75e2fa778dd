package checker

import (
	"fmt"
	"path/filepath"

	"github.com/ethereum-optimism/infra/op-golden/options"
)

// resolveChain follows -cfg directives. Only the cfg of the most recently
// loaded source is followed; each loaded file is merged over set and moves the
// active directory to the folder of that file. visited holds the absolute
// paths already loaded, so a file that refers back to itself is an error.
func resolveChain(set *options.Set, dir string, visited map[string]bool) (string, error) {
	last := set
	for {
		values, ok, err := last.Validate(options.Rule{Name: OptConfig, Optional: true, Min: 1, Max: 1})
		if !ok || err != nil {
			// count errors are reported by validation
			return dir, nil
		}
		path, err := filepath.Abs(options.ResolvePath(dir, values[0].Text))
		if err != nil {
			return dir, err
		}
		if visited[path] {
			return dir, fmt.Errorf("configuration cycle through %s", path)
		}
		visited[path] = true

		more, err := options.Load(path)
		if err != nil {
			return dir, err
		}
		set.Merge(more)
		dir = filepath.Dir(path)
		last = more
	}
}
