package main

import "github.com/jmcleod/assettag/cmd/assettag/cmd"

func main() {
	cmd.Execute()
}
