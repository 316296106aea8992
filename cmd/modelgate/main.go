package main

import "github.com/Modelgate-Labs/modelgate/cmd/modelgate/cmd"

func main() {
	cmd.Execute()
}
