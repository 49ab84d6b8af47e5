package main

import "idobridge/cmd"

func main() {
	cmd.Execute()
}
