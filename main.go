package main

import (
	"github.com/feedlark/reelwatch/cmd"
)

func main() {
	cmd.Execute()
}
