package main

import "github.com/think-cell/minidump/cmd/opendump/cmd"

func main() {
	cmd.Execute()
}
