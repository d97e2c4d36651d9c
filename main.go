package main

import "github.com/prasetya/receiptbot/cmd"

func main() {
	cmd.Execute()
}
