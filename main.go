package main

import "github.com/devvluca/EclesIA/cmd"

func main() {
	cmd.Execute()
}
