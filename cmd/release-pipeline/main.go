package main

import "github.com/oshokin/release-pipeline/cmd/release-pipeline/cmd"

func main() {
	cmd.Execute()
}
