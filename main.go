package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ZacxDev/flowgraph/config"
	"github.com/ZacxDev/flowgraph/fs"
	"github.com/ZacxDev/flowgraph/pipeline"
)

func main() {
	configPath := flag.String("config", "pipeline.star", "path to the Starlark pipeline definition")
	threads := flag.Int("threads", 4, "number of worker threads")
	plain := flag.Bool("plain", false, "log job output to stdout instead of the interactive view")
	flag.Parse()

	filesystem := fs.RealFileSystem{}
	specs, err := config.ParsePipelineConfig(filesystem, *configPath)
	if err != nil {
		log.Fatalf("failed to load pipeline config: %v", err)
	}
	if len(specs) == 0 {
		log.Fatalf("pipeline %s defines no jobs", *configPath)
	}

	runner := pipeline.NewRunner(specs)

	if *plain {
		err := runner.Run(*threads)
		snapshot := runner.Status.Snapshot()
		names := make([]string, 0, len(snapshot))
		for name := range snapshot {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			for _, line := range snapshot[name].LogLines {
				fmt.Printf("[%s] %s\n", name, line)
			}
		}
		if err != nil {
			log.Fatalf("pipeline failed: %v", err)
		}
		fmt.Printf("pipeline completed: %d job(s)\n", len(specs))
		return
	}

	done := make(chan error, 1)
	go func() {
		done <- runner.Run(*threads)
	}()

	p := tea.NewProgram(initialModel(specs, runner.Status))
	go func() {
		err := <-done
		done <- err
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		fmt.Println("Error running program:", err)
		os.Exit(1)
	}

	if err := <-done; err != nil {
		log.Fatalf("pipeline failed: %v", err)
	}
	fmt.Printf("pipeline completed: %d job(s)\n", len(specs))
}
