package main

import "github.com/GOTO-OBS/gtecs-common/cmd"

func main() {
	cmd.Execute()
}
