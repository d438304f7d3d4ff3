package main

import "github.com/tilecraft/dzgen/cmd"

func main() {
	cmd.Execute()
}
