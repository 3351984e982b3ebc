package main

import "github.com/chcalder/msal-react-obo-aisearch-demo/obo-api/cmd"

func main() {
	cmd.Execute()
}
