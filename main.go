package main

import "github.com/Tiliavir/worklog-sync/cmd"

func main() {
	cmd.Execute()
}
