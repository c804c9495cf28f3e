package main

import "github.com/kozaktomas/ar-marker/cmd"

func main() {
	cmd.Execute()
}
