package main

import "github.com/ethpandaops/execution-cfg/cmd"

func main() {
	cmd.Execute()
}
