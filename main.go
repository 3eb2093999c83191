package main

import "notesync/cmd"

func main() {
	cmd.Run()
}
