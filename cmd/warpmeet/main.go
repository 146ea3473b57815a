package main

import "github.com/BioHazard786/Warpmeet/internal/commands"

func main() {
	commands.Execute()
}
