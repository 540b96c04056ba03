package main

import "github.com/agentperch/perchgate/cmd/perchgate/cmd"

func main() {
	cmd.Execute()
}
