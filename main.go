package main

import "github.com/zheqd/geosnag/cmd"

func main() {
	cmd.Execute()
}
