package main

import "github.com/wintermelt/minecraft_session_keeper/cmd/msk/cmd"

func main() {
	cmd.Execute()
}
