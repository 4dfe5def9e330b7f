package main

import "github.com/jet-lab/lookup-table-registry-go/cmd/registry-server/cmd"

func main() {
	cmd.Execute()
}
