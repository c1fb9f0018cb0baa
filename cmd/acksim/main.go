package main

import "github.com/LeJamon/ackchain-sim/internal/cli"

func main() {
	cli.Execute()
}
