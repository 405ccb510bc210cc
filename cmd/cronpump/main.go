package main

import (
	"context"
	"fmt"
	"os"

	_ "time/tzdata"

	"cronpump/internal/cli"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.NewRootCommand(version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
