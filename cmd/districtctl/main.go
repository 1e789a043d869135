package main

import (
	"os"

	"github.com/edgemaps/districtd/internal/cli"
)

func main() {
	os.Exit(int(cli.Run()))
}
