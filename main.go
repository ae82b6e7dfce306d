// The main package for the jobspy-ingest executable.
package main

import (
	"github.com/borgius/n8n-local/cmd"
)

func main() {
	cmd.Execute()
}
