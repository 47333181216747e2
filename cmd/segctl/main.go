package main

import (
	"os"

	"segmentd/internal/segctl"
)

func main() {
	os.Exit(segctl.Execute())
}
