// Package main provides the entry point for the chat server.
package main

import (
	"fmt"
	"os"

	"github.com/telnet2/go-practice/go-chat/cmd/chatserver/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
