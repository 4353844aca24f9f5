package main

import "github.com/KaramelBytes/datacrew-cli/cmd"

func main() {
	cmd.Execute()
}
