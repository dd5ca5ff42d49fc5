package main

import "pstrace/cmd"

func main() {
	cmd.Execute()
}
