package main

import (
	"github.com/groundlink-io/groundlink/cmd/glink-gcsd/app"
)

func main() {
	app.NewApp().Run()
}
