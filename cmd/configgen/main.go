package main

import (
	"flag"
	"log"

	"github.com/danmuck/linkctl/internal/config"
	"github.com/danmuck/linkctl/internal/layout"
)

func main() {
	kind := flag.String("kind", "link", "config kind: link|layouts")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		switch *kind {
		case "link":
			if _, err := config.Load(path); err != nil {
				log.Fatal(err)
			}
		case "layouts":
			// Open would re-seed a broken store; validate without touching it
			if err := layout.Validate(path); err != nil {
				log.Fatal(err)
			}
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}

func defaultPath(kind string) string {
	switch kind {
	case "link":
		return "cmd/linkctl/config.toml"
	case "layouts":
		return config.Default().Layouts.Path
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}
