package main

import "github.com/finelagusaz/ghost-launcher/cmd/ghostcat/cmd"

func main() {
	cmd.Execute()
}
