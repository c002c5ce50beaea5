package main

import "github.com/davarch/buildgate/cmd/buildgate/cli"

func main() {
	cli.Execute()
}
