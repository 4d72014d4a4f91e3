package main

import "github.com/azeasz/fobi-amaturalist-sub000/cmd"

func main() {
	cmd.Execute()
}
