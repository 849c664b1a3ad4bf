package main

import "github.com/audiolibrelab/voicememo/cmd"

func main() {
	cmd.Execute()
}
