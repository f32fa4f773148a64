package main

import "metros-backend/cmd"

func main() {
	cmd.Run()
}
