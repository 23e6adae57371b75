package main

import "github.com/quotepulse/stock-tracker/cmd"

func main() {
	cmd.Execute()
}
