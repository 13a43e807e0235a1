// Command fusionctl queries the local indexes built by the indexer: fused
// search, autocomplete suggestions and click feedback.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/cmd/fusionctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
