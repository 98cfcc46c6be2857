package main

import "statwatch/internal/cli"

func main() {
	cli.Execute()
}
