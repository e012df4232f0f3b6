package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ChristopherRabotin/mga"
	"github.com/ChristopherRabotin/mga/search"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the cheapest trajectory along a sequence of bodies",
	Long: `Search the cheapest trajectory from the first body of the sequence to the last one,
flying by every body in between.

Examples:
  # Earth to Mars with a Venus flyby, departing in 2026
  mgasearch search --sequence Earth,Venus,Mars --from 2026-01-01 --until 2027-01-01

  # Same, from a scenario file
  mgasearch search --scenario venus-mars.toml
`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringSlice("sequence", nil, "bodies of the trajectory, from departure to destination")
	searchCmd.Flags().String("from", "", "earliest departure date (Julian date or 2006-01-02 15:04:05)")
	searchCmd.Flags().String("until", "", "latest departure date")
	searchCmd.Flags().Float64("altitude", 200, "altitude of the circular parking orbit (km)")
	viper.BindPFlag("mission.sequence", searchCmd.Flags().Lookup("sequence"))
	viper.BindPFlag("mission.from", searchCmd.Flags().Lookup("from"))
	viper.BindPFlag("mission.until", searchCmd.Flags().Lookup("until"))
	viper.BindPFlag("mission.altitude", searchCmd.Flags().Lookup("altitude"))
}

func runSearch(cmd *cobra.Command, args []string) error {
	catalog := mga.SolarSystem()
	var sequence []int
	for _, name := range viper.GetStringSlice("mission.sequence") {
		body, err := catalog.ByName(name)
		if err != nil {
			return err
		}
		sequence = append(sequence, body.ID)
	}
	dateMin, err := readDate("mission.from")
	if err != nil {
		return err
	}
	dateMax, err := readDate("mission.until")
	if err != nil {
		return err
	}

	coord, err := newCoordinator(search.WithGenerationHook(func(s search.GenerationSample) {
		level.Info(logger).Log("subsys", "cli", "generation", s.Generation, "mean", s.Mean, "best", s.Best, "Δv(km/s)", s.BestDeltaV)
	}))
	if err != nil {
		return err
	}
	defer coord.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	result, err := coord.Search(ctx, search.Context{
		Sequence:          sequence,
		DateMin:           dateMin,
		DateMax:           dateMax,
		DepartureAltitude: viper.GetFloat64("mission.altitude"),
	})
	switch {
	case errors.Is(err, search.ErrCancelled):
		level.Warn(logger).Log("subsys", "cli", "status", "cancelled")
		return err
	case errors.Is(err, search.ErrInfeasible):
		level.Error(logger).Log("subsys", "cli", "status", "infeasible", "err", err)
		return err
	case err != nil:
		return err
	}

	level.Info(logger).Log("subsys", "cli", "status", "finished", "run", result.RunID, "Δv(km/s)", result.DeltaV, "fitness", result.Fitness)
	for i, step := range result.Steps {
		body, _ := catalog.Body(step.Attractor)
		kv := []interface{}{"subsys", "cli", "step", i, "attractor", body.Name, "start", mga.FormatDate(step.DateOfStart), "duration(days)", step.Duration / 86400, "orbit", step.Elements}
		if m := step.Maneuver; m != nil {
			kv = append(kv, "maneuver", m.Context.Kind, "Δv(km/s)", fmt.Sprintf("%.6f", m.Magnitude()))
			if m.Context.Kind == mga.FlybyManeuver {
				kv = append(kv, "rP(km)", m.Periapsis, "ψ(deg)", mga.Rad2deg(m.Deflection), "BT(km)", m.BT, "BR(km)", m.BR)
			}
		}
		level.Info(logger).Log(kv...)
	}
	return nil
}
