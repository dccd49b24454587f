// Command pipelinedemo is an ambient CLI example wiring config flags
// to a pipeline construction — it is not a network function itself,
// only a demonstration that config.Config knobs reach a running
// pipeline, built with cobra/viper the way the wider example corpus
// wires CLI entrypoints (the teacher's flow package has no CLI of its
// own; it is consumed as a library).
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wash2/NetBricks/config"
	"github.com/wash2/NetBricks/executable"
	"github.com/wash2/NetBricks/header"
	"github.com/wash2/NetBricks/internal/logging"
	"github.com/wash2/NetBricks/ioiface"
	"github.com/wash2/NetBricks/mbuf"
	"github.com/wash2/NetBricks/operator"
	"github.com/wash2/NetBricks/packet"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipelinedemo",
		Short: "Run a minimal loopback pipeline built from config",
		RunE:  run,
	}

	flags := cmd.Flags()
	flags.Int("ring-capacity", 0, "mbuf pool / ring capacity (default 256)")
	flags.Int("burst-size", 0, "packets moved per recv/send call (default 32)")
	flags.Int("mbuf-capacity", 0, "per-mbuf payload capacity in bytes (default 2048)")
	flags.Int("stack-size", 0, "parse stack depth per packet (default 4)")
	flags.Int("ticks", 10, "number of scheduler ticks to run")

	viper.BindPFlags(flags)
	viper.SetEnvPrefix("PIPELINEDEMO")
	viper.AutomaticEnv()

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Config{
		RingCapacity: viper.GetInt("ring-capacity"),
		BurstSize:    viper.GetInt("burst-size"),
		MbufCapacity: viper.GetInt("mbuf-capacity"),
		StackSize:    viper.GetInt("stack-size"),
	}.WithDefaults()

	logging.SetLevel(cfg.LogLevel)
	logging.Info("starting pipelinedemo", logrus.Fields{
		"ring_capacity": cfg.RingCapacity,
		"burst_size":    cfg.BurstSize,
		"mbuf_capacity": cfg.MbufCapacity,
		"stack_size":    cfg.StackSize,
	})

	pool := mbuf.NewPool(cfg.RingCapacity, cfg.MbufCapacity)
	ring := ioiface.NewRing(cfg.RingCapacity)
	seedLoopback(pool, ring, cfg.BurstSize)

	rx := operator.NewReceiveBatch(ring, cfg.BurstSize)
	kept := operator.NewFilterBatch(rx, cfg.StackSize, func(p *packet.Packet[header.Mac, struct{}]) bool {
		return true
	})
	root := executable.FromAct(kept)

	ticks, _ := cmd.Flags().GetInt("ticks")
	total := executable.Run(root, ticks)
	logging.Info("pipelinedemo finished", logrus.Fields{"processed": total})
	return nil
}

// seedLoopback pushes a handful of bare Ethernet frames into ring so
// the demo pipeline has something to process without a real NIC.
func seedLoopback(pool *mbuf.Pool, ring *ioiface.Ring, n int) {
	slots := make([]mbuf.Mbuf, 0, n)
	for i := 0; i < n; i++ {
		mb, err := pool.Alloc()
		if err != nil {
			break
		}
		mb.AddDataEnd(header.Mac{}.Size())
		slots = append(slots, mb)
	}
	ring.Send(slots)
}
