package main

import "imdex/cmd"

func main() {
	cmd.Execute()
}
