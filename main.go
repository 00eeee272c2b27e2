package main

import "github.com/edgeflare/pgrepo/cmd/pgrepo"

func main() {
	pgrepo.Main()
}
