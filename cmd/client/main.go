package main

import "offsync/cmd/client/cmd"

func main() {
	cmd.Execute()
}
