package main

import "github.com/agorachain/agora/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}