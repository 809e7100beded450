package main

import "weavesync/cmd/weavectl/cmd"

func main() {
	cmd.Execute()
}
