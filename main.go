package main

import "github.com/jetlinks-ai/aistaff/cmd"

func main() {
	cmd.Execute()
}
