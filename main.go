package main

import (
	"github.com/tneurolab/crossdetect/cmd"
	"github.com/tneurolab/crossdetect/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
