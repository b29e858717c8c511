package main

import "github.com/vietddude/chainetl/internal/cli"

func main() {
	cli.Execute()
}
