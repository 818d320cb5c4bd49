package main

import "github.com/oshokin/gacha-release/cmd/gacha-release/cmd"

func main() {
	cmd.Execute()
}
