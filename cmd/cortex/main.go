// Command cortex runs the code execution engine. The configured roles decide
// whether the process serves the HTTP API, runs queue workers, reaps stopped
// containers, or any combination of them.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/cuervolu/cortex-engine/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cortex: %v\n", err)
		os.Exit(1)
	}

	fx.New(newApp(cfg)).Run()
}
