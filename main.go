package main

import "stealthcompany.com/complaints/cmd"

func main() {
	cmd.Execute()
}
