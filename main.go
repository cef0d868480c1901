package main

import "github.com/audiolibrelab/cliplog/cmd"

func main() {
	cmd.Execute()
}
