package main

import "supportkb/cmd"

func main() {
	cmd.Execute()
}
