package main

import "github.com/yourusername/freelance-billing/cmd"

func main() {
	cmd.Execute()
}
