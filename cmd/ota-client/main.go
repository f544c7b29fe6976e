package main

import "github.com/oshokin/ota-client/cmd/ota-client/cmd"

func main() {
	cmd.Execute()
}
