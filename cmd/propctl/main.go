package main

import "propsync/cmd/propctl/cmd"

func main() {
	cmd.Execute()
}
