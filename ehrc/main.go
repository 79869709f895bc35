package main

import (
	"log"
	"os"

	"github.com/carenexus/ehrc-app/ehrc/ehrccli"
)

func main() {
	app := ehrccli.GetApp()
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
