// Command toysmdemo wires a small traffic-light hierarchy through the
// full runtime stack: GraphBuilder, Machine, a logging observer, a
// Prometheus collector, and the DOT visualizer. It mirrors the shape
// of the teacher's examples/traffic_light/main.go, adapted to this
// runtime's builder and to a state that is no longer flat: Red gates
// a junction that picks Stopped vs Flashing depending on a fault
// counter, demonstrating a guarded compound transition end to end.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/willakat/toysm"
	"github.com/willakat/toysm/config"
	"github.com/willakat/toysm/metrics"
	"github.com/willakat/toysm/visualization"
)

func buildGraph() (*toysm.Graph, error) {
	b := toysm.NewGraph("TrafficLight")

	red := b.State(b.Root(), "Red")
	green := b.State(b.Root(), "Green")
	yellow := b.State(b.Root(), "Yellow")
	j := b.Junction(b.Root(), "fault_check")
	stopped := b.State(b.Root(), "Stopped")
	flashing := b.State(b.Root(), "Flashing")

	b.SetInitial(b.Root(), red)

	faults := 0

	b.Transition(red, green, "NEXT").Action(func(ctx *toysm.Context) error {
		fmt.Println("Changing from Red to Green")
		return nil
	})
	b.Transition(green, yellow, "NEXT").Action(func(ctx *toysm.Context) error {
		fmt.Println("Changing from Green to Yellow")
		return nil
	})
	b.Transition(yellow, red, "NEXT").Action(func(ctx *toysm.Context) error {
		fmt.Println("Changing from Yellow to Red")
		return nil
	})

	b.Transition(red, j, "FAULT")
	b.Transition(j, stopped, "").Guard(func(ctx *toysm.Context) bool { return faults < 2 }).
		Action(func(ctx *toysm.Context) error { faults++; return nil })
	b.Transition(j, flashing, "")

	b.AddEntryAction(red, func(ctx *toysm.Context) error { fmt.Println("Light turned RED - Stop"); return nil })
	b.AddEntryAction(green, func(ctx *toysm.Context) error { fmt.Println("Light turned GREEN - Go"); return nil })
	b.AddEntryAction(yellow, func(ctx *toysm.Context) error { fmt.Println("Light turned YELLOW - Prepare to stop"); return nil })
	b.AddEntryAction(stopped, func(ctx *toysm.Context) error { fmt.Println("Fault handled - now Stopped"); return nil })
	b.AddEntryAction(flashing, func(ctx *toysm.Context) error { fmt.Println("Repeated fault - now Flashing"); return nil })

	return b.Build()
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg := config.Default()
	if path := os.Getenv("TOYSM_CONFIG"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			logger.Fatal().Err(err).Msg("loading config")
		}
		cfg = loaded
	}

	graph, err := buildGraph()
	if err != nil {
		logger.Fatal().Err(err).Msg("building graph")
		return
	}

	if err := visualization.NewDOTGenerator(graph).GenerateToFile("traffic_light.dot"); err != nil {
		logger.Warn().Err(err).Msg("writing dot file")
	}

	m := toysm.New(graph, nil).
		WithLogger(logger).
		WithConfig(cfg)
	m.AddObserver(toysm.NewLoggingObserver(logger))

	collector := metrics.NewCollector("traffic_light", m)
	registry := prometheus.NewRegistry()
	collector.MustRegister(registry)
	m.AddObserver(collector)

	go func() {
		http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		_ = http.ListenAndServe(":2112", nil)
	}()

	if err := m.Start(); err != nil {
		logger.Fatal().Err(err).Msg("starting machine")
	}

	fmt.Println("\n=== Traffic Light Simulation ===")

	for i := 0; i < 3; i++ {
		time.Sleep(200 * time.Millisecond)
		collector.Sample()
		if err := m.Post(toysm.NewEvent("NEXT", nil)); err != nil {
			fmt.Printf("error posting event: %v\n", err)
			continue
		}
	}

	_ = m.Post(toysm.NewEvent("FAULT", nil))
	m.Settle(time.Second)
	collector.Sample()

	m.Stop("")
	m.Join(time.Second)
	fmt.Println("\n=== Simulation Completed ===")
}
