// Command library runs the library catalog GraphQL service.
package main

import (
	"os"

	"github.com/andrewwphillips/library/cmd/library/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
