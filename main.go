package main

import "github.com/distlockd/distlockd/cmd"

func main() {
	cmd.Execute()
}
