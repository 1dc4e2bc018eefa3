package main

import "github.com/think-cell/minidump/cmd/dumpwriter/cmd"

func main() {
	cmd.Execute()
}
