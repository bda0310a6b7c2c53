package main

import "github.com/maltedev/seed-price-scraper/cmd/seed-scraper/commands"

func main() {
	commands.Execute()
}
