package main

import "github.com/MeKo-Tech/ballotcount/cmd/ballotcount/cmd"

func main() {
	cmd.Execute()
}
