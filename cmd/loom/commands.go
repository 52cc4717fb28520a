package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/commontoolsinc/loom/pkg/cfc"
	"github.com/commontoolsinc/loom/pkg/events"
	"github.com/commontoolsinc/loom/pkg/log"
	"github.com/commontoolsinc/loom/pkg/metrics"
	"github.com/commontoolsinc/loom/pkg/reference"
	"github.com/commontoolsinc/loom/pkg/runtime"
	"github.com/commontoolsinc/loom/pkg/storage"
	"github.com/commontoolsinc/loom/pkg/transaction"
	"github.com/commontoolsinc/loom/pkg/types"
)

// openRuntime builds a runtime from the effective configuration.
func openRuntime(broker *events.Broker) (*runtime.Runtime, error) {
	var store storage.Store
	if cfg.DataDir != "" {
		boltStore, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		store = boltStore
	}
	lattice, err := cfg.Lattice()
	if err != nil {
		return nil, err
	}
	mode := cfg.Flow.Mode
	if mode == "" {
		mode = cfc.ModeDisabled
	}
	return runtime.New(runtime.Config{
		Store:      store,
		Broker:     broker,
		Lattice:    lattice,
		Mode:       mode,
		MaxRetries: cfg.MaxRetries,
	}), nil
}

func printJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

var getCmd = &cobra.Command{
	Use:   "get <space> <entity>",
	Short: "Read the current value of an entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(nil)
		if err != nil {
			return err
		}
		defer rt.Dispose()

		cell := rt.GetCell(types.Space(args[0]), args[1], nil)
		value, err := cell.GetRaw()
		if err != nil {
			return err
		}
		return printJSON(value)
	},
}

var setCmd = &cobra.Command{
	Use:   "set <space> <entity> <json>",
	Short: "Write a JSON value to an entity",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var value any
		if err := json.Unmarshal([]byte(args[2]), &value); err != nil {
			return fmt.Errorf("invalid JSON value: %w", err)
		}
		rt, err := openRuntime(nil)
		if err != nil {
			return err
		}
		defer rt.Dispose()

		cell := rt.GetCell(types.Space(args[0]), args[1], nil)
		if err := cell.Set(value); err != nil {
			return err
		}
		log.Info("Value committed")
		return nil
	},
}

var retractCmd = &cobra.Command{
	Use:   "retract <space> <entity>",
	Short: "Retract an entity's value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(nil)
		if err != nil {
			return err
		}
		defer rt.Dispose()

		cell := rt.GetCell(types.Space(args[0]), args[1], nil)
		ok, err := rt.EditWithRetry(func(tx *transaction.Transaction) error {
			_, err := tx.Write(cell.Address(), nil)
			return err
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("retraction did not commit")
		}
		log.Info("Entity retracted")
		return nil
	},
}

var logCmd = &cobra.Command{
	Use:   "log <space> <entity>",
	Short: "Show an entity's history chain",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DataDir == "" {
			return fmt.Errorf("log requires --data-dir")
		}
		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		space := types.Space(args[0])
		key := types.FactKey{Of: types.EntityID(args[1]), The: types.ApplicationJSON}
		if !key.Of.Valid() {
			key.Of = types.NewEntityID(args[1])
		}

		// Walk the cause chain from the current fact backwards.
		fact, err := store.GetFact(space, key)
		if err != nil {
			return err
		}
		for fact != nil {
			hash := reference.ReferFact(*fact)
			entry := map[string]any{"hash": hash, "is": fact.Is}
			if fact.Cause != "" {
				entry["cause"] = fact.Cause
			}
			if err := printJSON(entry); err != nil {
				return err
			}
			if fact.Cause == "" {
				break
			}
			prior, err := store.GetHistory(space, key, fact.Cause)
			if err != nil {
				break
			}
			fact = prior
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream runtime events",
	RunE: func(cmd *cobra.Command, args []string) error {
		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		rt, err := openRuntime(broker)
		if err != nil {
			return err
		}
		defer rt.Dispose()

		sub := broker.Subscribe()
		defer broker.Unsubscribe(sub)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		log.Info("Watching for events (ctrl-c to stop)")
		for {
			select {
			case event := <-sub:
				fmt.Printf("%s %s %s %s\n",
					event.Timestamp.Format("15:04:05"),
					event.Type, event.Space, event.Of)
			case <-sigCh:
				return nil
			}
		}
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Serve the Prometheus metrics endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.MetricsAddr
		if addr == "" {
			addr = ":9464"
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		log.Logger.Info().Str("addr", addr).Msg("Serving metrics")
		return http.ListenAndServe(addr, mux)
	},
}
