package main

import "github.com/vietddude/hotstore/internal/cli"

func main() {
	cli.Execute()
}
