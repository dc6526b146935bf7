package main

import "github.com/mattsolo1/han-bridge/commands"

func main() {
	commands.Execute()
}
