package cmd

import (
	"fmt"
	"io"
)

const banner = `
     _                 _  _____
    / \   ___ ___  ___| ||_   _|_ _  __ _
   / _ \ / __/ __|/ _ \ __|| |/ _` + "`" + ` |/ _` + "`" + ` |
  / ___ \\__ \__ \  __/ |_ | | (_| | (_| |
 /_/   \_\___/___/\___|\__||_|\__,_|\__, |
                                     |___/
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Asset tracking service - Version %s\x1b[0m\n\n", Version)
}
