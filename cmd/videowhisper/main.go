package main

import (
	"os"

	"github.com/zhuguadundan/videowhisper/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
