package main

import (
	"github.com/c9s/hawkes/pkg/cmd"
)

func main() {
	cmd.Execute()
}
