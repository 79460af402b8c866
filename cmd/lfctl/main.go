// Command lfctl is a diagnostic CLI for the message runtime: a thin,
// non-interactive wrapper to exercise the engine by hand. It is not a
// host application surface of its own.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lfproto/lf/internal/image"
	"github.com/lfproto/lf/internal/invoke"
	glog "github.com/lfproto/lf/internal/log"
	"github.com/lfproto/lf/internal/manifest"
	_ "github.com/lfproto/lf/internal/modules/all"
	"github.com/lfproto/lf/internal/perform"
	"github.com/lfproto/lf/internal/registry"
	"github.com/lfproto/lf/internal/transport/loopback"
	"github.com/lfproto/lf/internal/transport/tcp"
	"github.com/lfproto/lf/internal/ui/colorize"
	"github.com/lfproto/lf/internal/wire"
	"golang.org/x/sync/errgroup"
)

var verbose bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "lfctl",
		Short: "Diagnostic tool for the lf message runtime",
		Long: `lfctl drives the host-to-device invocation runtime by hand.

It is a debugging aid, not a host application: real hosts link
internal/invoke directly and bind against a manifest describing the
modules they expect a device to expose.`,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")

	rootCmd.AddCommand(serveCmd(), invokeCmd(), loadCmd(), selftestCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a perform engine over TCP with the standard module set installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			glog.Init(verbose)

			ln, err := tcp.Listen(listen)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			defer ln.Close()
			fmt.Printf("lfctl: serving on %s\n", ln.Addr())

			engine := perform.New(registry.DefaultRegistry, wire.Profile32, perform.Info{
				Name:         "lfctl-device",
				PointerWidth: 4,
			})

			g, ctx := errgroup.WithContext(cmd.Context())
			for {
				ep, err := ln.Next()
				if err != nil {
					return err
				}
				g.Go(func() error { return engine.Serve(ctx, ep) })
			}
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":4242", "address to listen on")
	return cmd
}

func invokeCmd() *cobra.Command {
	var standardIndex uint8
	var userModule bool
	cmd := &cobra.Command{
		Use:   "invoke <addr> <module> <function> [args...]",
		Short: "Attach, bind, invoke function index 0 of a module, and print the result (<function> only labels the call)",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			glog.Init(verbose)
			ctx := cmd.Context()

			addr, module, function := args[0], args[1], args[2]
			ep := tcp.Dial(addr)
			dev, err := invoke.Attach(ctx, addr, ep, wire.Profile32)
			if err != nil {
				return fmt.Errorf("attach: %w", err)
			}
			defer dev.Detach()

			client := invoke.NewClient()
			client.Select(dev)
			if err := client.Bind(dev, &manifest.Module{Name: module, User: userModule}, standardIndex); err != nil {
				return fmt.Errorf("bind: %w", err)
			}

			wireArgs, err := parseArgs(args[3:])
			if err != nil {
				return err
			}

			fmt.Printf("invoking %s.%s\n", colorize.Module(module), colorize.Function(function))
			val, err := client.Invoke(ctx, dev, module, function, 0, wireArgs, wire.TagU64)
			if err != nil {
				if code, ok := client.LastError(); ok {
					return fmt.Errorf("invoke: %w (device code %v)", err, code)
				}
				return fmt.Errorf("invoke: %w", err)
			}
			fmt.Printf("result: 0x%x\n", val)
			return nil
		},
	}
	cmd.Flags().Uint8Var(&standardIndex, "index", 1, "standard module index, when --user is not set")
	cmd.Flags().BoolVar(&userModule, "user", false, "treat module as a dynamically loaded user module")
	return cmd
}

func loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <addr> <image-file>",
		Short: "Stage a loadable image into device RAM and print its load address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			glog.Init(verbose)
			ctx := cmd.Context()

			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			hdr, err := image.ParseHeader(data)
			if err != nil {
				return fmt.Errorf("parse image header: %w", err)
			}

			ep := tcp.Dial(args[0])
			dev, err := invoke.Attach(ctx, args[0], ep, wire.Profile32)
			if err != nil {
				return fmt.Errorf("attach: %w", err)
			}
			defer dev.Detach()

			client := invoke.NewClient()
			client.Select(dev)
			addr, err := client.LoadImage(ctx, dev, data)
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}

			kind := "module"
			if hdr.IsApplication() {
				kind = "application"
			}
			fmt.Printf("loaded %s %s (%d bytes) at 0x%x\n", kind, args[1], len(data), addr)
			return nil
		},
	}
	return cmd
}

func selftestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Run an in-process loopback invocation round trip",
		RunE: func(cmd *cobra.Command, args []string) error {
			glog.Init(verbose)
			ctx := cmd.Context()

			engine := perform.New(registry.DefaultRegistry, wire.Profile32, perform.Info{
				Name:         "selftest-device",
				PointerWidth: 4,
			})
			pair := loopback.New()

			serveCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go engine.Serve(serveCtx, pair.Device)

			dev, err := invoke.Attach(ctx, "loopback", pair.Host, wire.Profile32)
			if err != nil {
				return err
			}
			defer dev.Detach()

			client := invoke.NewClient()
			client.Select(dev)
			if err := client.Bind(dev, &manifest.Module{Name: "led"}, 1); err != nil {
				return fmt.Errorf("bind: %w", err)
			}

			cfg, err := client.Configuration(ctx, dev)
			if err != nil {
				return fmt.Errorf("selftest configuration failed: %w", err)
			}
			fmt.Printf("selftest: device %q, %d-bit pointers, %d modules\n",
				cfg.Name, cfg.PointerWidth*8, cfg.ModuleCount)

			val, err := client.Invoke(ctx, dev, "led", "setRGB", 0, []wire.Arg{
				{Tag: wire.TagU8, Value: 10},
				{Tag: wire.TagU8, Value: 20},
				{Tag: wire.TagU8, Value: 30},
			}, wire.TagVoid)
			if err != nil {
				return fmt.Errorf("selftest invoke failed: %w", err)
			}
			fmt.Printf("selftest: %s -> %d (ok)\n", colorize.Function("led.setRGB"), val)

			payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
			addr, err := client.Send(ctx, dev, payload)
			if err != nil {
				return fmt.Errorf("selftest send failed: %w", err)
			}
			back := make([]byte, len(payload))
			if err := client.Receive(ctx, dev, addr, back); err != nil {
				return fmt.Errorf("selftest receive failed: %w", err)
			}
			for i := range payload {
				if back[i] != payload[i] {
					return fmt.Errorf("selftest bulk round trip corrupt: sent %x, got %x", payload, back)
				}
			}
			fmt.Printf("selftest: bulk round trip via %s ok\n", colorize.Value(fmt.Sprintf("0x%x", addr)))
			return nil
		},
	}
}

func parseArgs(raw []string) ([]wire.Arg, error) {
	out := make([]wire.Arg, 0, len(raw))
	for _, a := range raw {
		v, err := strconv.ParseUint(a, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("parse arg %q: %w", a, err)
		}
		out = append(out, wire.Arg{Tag: wire.TagU8, Value: v})
	}
	return out, nil
}
