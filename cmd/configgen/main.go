package main

import (
	"flag"
	"log"

	"github.com/danmuck/scanlink/internal/config"
)

func main() {
	output := flag.String("output", "sim.toml", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to -output)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = *output
		}
		if _, err := config.LoadSimConfig(path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated simulator config at %s", path)
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote simulator config template to %s", *output)
}
