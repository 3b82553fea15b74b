package main

import (
	"github.com/polymer-relay/relayer/cli"
)

func main() {
	cli.NewRootCommand().Execute()
}
