package main

import "github.com/relab/arbmon/internal/cli"

func main() {
	cli.Execute()
}
