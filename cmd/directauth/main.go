package main

import "github.com/MrEthical07/directauth/internal/cli"

func main() {
	cli.Execute()
}
