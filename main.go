/*
	Copyright 2023 Markus Papenbrock
*/

package main

import "github.com/mpapenbr/touge-service-manager-go/cmd"

func main() {
	cmd.Execute()
}
