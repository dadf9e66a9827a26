package main

import "github.com/darkauth/darkauth/cmd/darkauth/cmd"

func main() {
	cmd.Execute()
}
