package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/rtx"
	"github.com/splitbench/splitbench/internal/devices"
	"github.com/splitbench/splitbench/internal/probe"
)

const usage = `splitbench-devices - inspect and drive the device registry

Usage:
  splitbench-devices list -devices <yaml> -keystore <dir> [-type SERVER|PARTICIPANT] [-available]
  splitbench-devices probe -host <host> [-port 22] [-timeout 500ms]
  splitbench-devices scan [-cidr 192.168.1.0/24] [-port 22] [-timeout 500ms] [-workers 10]
  splitbench-devices broadcast -devices <yaml> -keystore <dir> -type <type> -cmd <command>
  splitbench-devices transfer -devices <yaml> -keystore <dir> -type <type> -src <path> -dst <path>
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	log.SetReportTimestamp(false)

	switch os.Args[1] {
	case "-h", "--help", "help":
		fmt.Print(usage)
	case "list":
		handleList(os.Args[2:])
	case "probe":
		handleProbe(os.Args[2:])
	case "scan":
		handleScan(os.Args[2:])
	case "broadcast":
		handleBroadcast(os.Args[2:])
	case "transfer":
		handleTransfer(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

// loadRegistry builds a registry from the -devices and -keystore flags
// shared by the registry-backed subcommands.
func loadRegistry(source, keyDir string) *devices.Registry {
	registry, err := devices.NewRegistry(devices.RegistryConfig{
		Source: source,
		KeyDir: keyDir,
	}, probe.New(log.Default()), log.Default())
	rtx.Must(err, "failed to load device registry")
	return registry
}

func handleList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	source := fs.String("devices", "", "Device source YAML")
	keyDir := fs.String("keystore", "", "Directory holding device private keys")
	typeFilter := fs.String("type", "", "Only list devices of this type")
	availableOnly := fs.Bool("available", false, "Only list devices with a working credential")
	fs.Parse(args)

	registry := loadRegistry(*source, *keyDir)
	list := registry.Devices()
	if *typeFilter != "" {
		typ, err := devices.ParseDeviceType(*typeFilter)
		rtx.Must(err, "invalid device type")
		list = registry.List(typ, *availableOnly)
	} else if *availableOnly {
		var available []*devices.Device
		for _, d := range list {
			if d.Reachable() {
				available = append(available, d)
			}
		}
		list = available
	}

	fmt.Printf("%-12s  %-20s  %-12s  %-6s  %-9s  %s\n",
		"TYPE", "HOST", "USER", "PORT", "REACHABLE", "KEY")
	for _, d := range list {
		if d.Reachable() {
			host, _ := d.Host()
			user, _ := d.Username()
			port, _ := d.Port()
			key, _ := d.PrivateKeyPath()
			fmt.Printf("%-12s  %-20s  %-12s  %-6d  %-9t  %s\n",
				d.Type, host, user, port, true, key)
			continue
		}
		// No working credential: show the preferred candidate.
		cred := d.Credentials[0]
		fmt.Printf("%-12s  %-20s  %-12s  %-6d  %-9t  %s\n",
			d.Type, cred.Host, cred.Username, cred.ExperimentPort, false,
			cred.PrivateKeyPath)
	}
}

func handleProbe(args []string) {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	host := fs.String("host", "", "Host to probe")
	port := fs.Int("port", probe.DefaultPort, "TCP port to probe")
	timeout := fs.Duration("timeout", probe.DefaultTimeout, "Per-probe timeout")
	fs.Parse(args)

	if *host == "" {
		fs.Usage()
		os.Exit(2)
	}
	if !probe.New(log.Default()).IsReachable(*host, *port, *timeout) {
		fmt.Printf("%s:%d unreachable\n", *host, *port)
		os.Exit(1)
	}
	fmt.Printf("%s:%d reachable\n", *host, *port)
}

func handleScan(args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	cidr := fs.String("cidr", probe.DefaultCIDR, "CIDR pool to scan")
	port := fs.Int("port", probe.DefaultPort, "TCP port to probe")
	timeout := fs.Duration("timeout", probe.DefaultTimeout, "Per-probe timeout")
	workers := fs.Int("workers", probe.DefaultWorkers, "Concurrent probes")
	fs.Parse(args)

	hosts, err := probe.Hosts(*cidr)
	rtx.Must(err, "invalid CIDR")
	reachable := probe.New(log.Default()).Scan(context.Background(), hosts,
		*port, *timeout, *workers)
	for _, host := range reachable {
		fmt.Println(host)
	}
	fmt.Fprintf(os.Stderr, "%d/%d reachable\n", len(reachable), len(hosts))
}

func handleBroadcast(args []string) {
	fs := flag.NewFlagSet("broadcast", flag.ExitOnError)
	source := fs.String("devices", "", "Device source YAML")
	keyDir := fs.String("keystore", "", "Directory holding device private keys")
	typeFilter := fs.String("type", string(devices.Participant), "Device type to broadcast to")
	command := fs.String("cmd", "", "Command to run on every matching device")
	timeout := fs.Duration("timeout", time.Minute, "Per-device command deadline")
	fs.Parse(args)

	if *command == "" {
		fs.Usage()
		os.Exit(2)
	}
	typ, err := devices.ParseDeviceType(*typeFilter)
	rtx.Must(err, "invalid device type")
	registry := loadRegistry(*source, *keyDir)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	outcomes := registry.BroadcastCommand(ctx, *command, typ)
	failed := 0
	for host, outcome := range outcomes {
		if outcome.Err != nil {
			fmt.Printf("%s: error: %v\n", host, outcome.Err)
			failed++
			continue
		}
		fmt.Printf("%s: exit %d\n%s", host, outcome.ExitCode, outcome.Stdout)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func handleTransfer(args []string) {
	fs := flag.NewFlagSet("transfer", flag.ExitOnError)
	source := fs.String("devices", "", "Device source YAML")
	keyDir := fs.String("keystore", "", "Directory holding device private keys")
	typeFilter := fs.String("type", string(devices.Participant), "Device type to transfer to")
	src := fs.String("src", "", "Local file or directory to send")
	dst := fs.String("dst", "", "Remote destination path")
	timeout := fs.Duration("timeout", 5*time.Minute, "Per-device transfer deadline")
	fs.Parse(args)

	if *src == "" || *dst == "" {
		fs.Usage()
		os.Exit(2)
	}
	typ, err := devices.ParseDeviceType(*typeFilter)
	rtx.Must(err, "invalid device type")
	registry := loadRegistry(*source, *keyDir)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	results := registry.BroadcastTransfer(ctx, *src, *dst, typ)
	failed := 0
	for host, ok := range results {
		fmt.Printf("%s: %t\n", host, ok)
		if !ok {
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}
