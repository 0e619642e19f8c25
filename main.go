package main

import (
	"log"

	"reservation-system/cmd"
	_ "reservation-system/migrations"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
