package main

import "github.com/zanmi-app/zanmi-go/internal/interfaces/cli"

func main() {
	cli.Execute()
}
