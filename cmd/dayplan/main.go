package main

import (
	"os"

	"dayplan/cmd/dayplan/cmd"
)

func main() {
	os.Exit(cmd.Execute(os.Args[1:], os.Stdout, os.Stderr, nil))
}
