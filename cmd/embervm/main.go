package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/emberlang/ember"
	"github.com/emberlang/ember/config"
	"github.com/emberlang/ember/module/modyaml"
)

func main() {
	modulePath := flag.String("module", "", "YAML module file to execute")
	configPath := flag.String("config", "", "Optional VM tuning file")
	workers := flag.Int("workers", 0, "Override worker count (0 = from config)")
	gcEvery := flag.Int64("gc-every", 0, "Override GC allocation threshold (0 = from config)")
	flag.Parse()

	if *modulePath == "" {
		fmt.Fprintln(os.Stderr, "usage: embervm -module program.yaml [-config vm.yaml] [-workers n]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *gcEvery > 0 {
		cfg.GCCollectEvery = *gcEvery
	}

	mod, err := modyaml.Load(*modulePath)
	if err != nil {
		log.Fatalf("Failed to load module: %v", err)
	}

	machine := ember.NewVM(cfg)
	result, err := machine.Execute(mod)
	if err != nil {
		log.Fatalf("Execution failed: %v", err)
	}
	fmt.Println(ember.DescribeValue(result))
}
