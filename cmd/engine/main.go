// Command engine runs the derivatives trading engine: the operator control
// surface plus whichever trading loop (Sentinel or Institutional) the
// operator has activated over it.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
