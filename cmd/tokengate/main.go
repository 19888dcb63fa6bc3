package main

import "github.com/tokengate/tokengate/cmd/tokengate/cmd"

func main() {
	cmd.Execute()
}
