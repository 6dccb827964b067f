package main

import "github.com/mpapenbr/racenav/cmd"

func main() {
	cmd.Execute()
}
