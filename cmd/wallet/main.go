package main

import "github.com/patrickcheng2025-art/s8/cmd/wallet/cmd"

func main() {
	cmd.Execute()
}
