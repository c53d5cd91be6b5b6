package main

import "github.com/jacobarthurs/pg-health/cmd"

func main() {
	cmd.Execute()
}
