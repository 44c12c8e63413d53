package main

import "github.com/mobistudy/indicators-backend-go/internal/cli"

var version = "dev"

func main() {
	cli.Execute(version)
}
