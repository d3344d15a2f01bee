package main

import (
	"agri-price-notify/internal/cli"
)

func main() {
	cli.Execute()
}
