package main

import "github.com/stonet-research/DPFS/cmd"

func main() {
	cmd.Execute()
}
