package main

import "github.com/kozaktomas/selfie-search/cmd"

func main() {
	cmd.Execute()
}
