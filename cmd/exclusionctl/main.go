package main

import "github.com/tylerweaver-alt/compliance-dashboard-sub002/cmd/exclusionctl/cmd"

func main() {
	cmd.Execute()
}
