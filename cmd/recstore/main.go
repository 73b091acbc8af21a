// Command recstore queries, patches, diffs and browses record files through
// an ordered record store.
package main

import (
	"os"

	"github.com/roach88/recordstore/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
