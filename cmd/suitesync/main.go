package main

import (
	"fmt"
	"os"

	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/internal/cli"
	internal_http "github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/internal/http"
	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/internal/log"
	internal_storage "github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/internal/storage"
	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/clock"
	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/models"
	"github.com/chris-fieldswee/sleepwalker-suite-sync-sub001/pkg/service"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{Use: "suitesync"}

// defaultLimits is the built-in time-limit table. Deployments with their own
// configuration replace this through the LimitResolver boundary.
func defaultLimits() service.StaticLimits {
	limits := service.StaticLimits{}
	base := map[models.TaskKind]int{
		models.DepartureCleanTaskKind: 45,
		models.ArrivalCleanTaskKind:   30,
		models.RefreshTaskKind:        15,
		models.StandardTaskKind:       30,
		models.TransitTaskKind:        20,
	}
	extra := map[models.CapacityCode]int{
		models.SingleCapacity: 0,
		models.DoubleCapacity: 5,
		models.TwinCapacity:   5,
		models.SuiteCapacity:  15,
		models.FamilyCapacity: 10,
	}
	for kind, minutes := range base {
		for capacity, add := range extra {
			limits[service.LimitKey{Kind: kind, Capacity: capacity}] = minutes + add
		}
	}
	return limits
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the suitesync HTTP server",
	Run: func(cmd *cobra.Command, args []string) {
		dbConnStr, _ := cmd.Flags().GetString("db")
		port, _ := cmd.Flags().GetString("port")
		store, err := internal_storage.InitStore(dbConnStr)
		if err != nil {
			log.GetLogger().Errorf("Failed to initialize store: %v", err)
			os.Exit(1)
		}
		defer store.Close()
		svc := service.NewTaskService(store, clock.RealClock{}, defaultLimits(), log.GetLogger())
		defer svc.Close()
		if err := internal_http.StartServer(port, svc); err != nil {
			log.GetLogger().Errorf("Server failed: %v", err)
			os.Exit(1)
		}
	},
}

func main() {
	rootCmd.PersistentFlags().String("db", "", "Database connection string")
	serveCmd.Flags().String("port", "8080", "HTTP listen port")
	rootCmd.AddCommand(serveCmd)
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
