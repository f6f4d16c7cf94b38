// Command deployer runs resumable smart contract deployments.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/deployer/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil && !cli.IsReported(err) {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(cli.GetExitCode(err))
}
