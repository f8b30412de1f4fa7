package main

import (
	"os"

	"github.com/scan-io-git/cloudsentinel/cmd"
)

func main() {
	code := cmd.Execute()
	os.Exit(code)
}
