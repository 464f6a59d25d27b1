// remapctl - control CLI for the remapd back-end
//
// remapctl acts as a minimal configuration front-end: it validates and
// pushes a compiled keymap, forwards focus updates and prints the actions
// the daemon triggers.
//
//	remapctl apply <keymap.json>   Validate and push a keymap
//	remapctl contexts <idx>...     Declare the focus-eligible contexts
//	remapctl actions               Print triggered actions as they arrive
//	remapctl check <keymap.json>   Validate a keymap without a daemon
//	remapctl ping                  Connect and send a ping (the reply is not awaited)
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"

	"remapd/internal/config"
	"remapd/internal/ipc"
	"remapd/internal/keymap"
)

func main() {
	os.Exit(run())
}

func run() int {
	socket := flag.String("socket", "", "daemon socket path (default from settings)")
	watch := flag.Bool("watch", false, "with apply: re-push the keymap when the file changes")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		return 1
	}

	socketPath := *socket
	if socketPath == "" {
		socketPath = config.DefaultConfig().Daemon.SocketPath
	}

	switch args[0] {
	case "check":
		if len(args) != 2 {
			usage()
			return 1
		}
		if _, err := loadKeymap(args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "remapctl: %v\n", err)
			return 1
		}
		fmt.Println("keymap ok")
		return 0

	case "apply":
		if len(args) != 2 {
			usage()
			return 1
		}
		return cmdApply(socketPath, args[1], *watch)

	case "contexts":
		indices := make([]int, 0, len(args)-1)
		for _, arg := range args[1:] {
			idx, err := strconv.Atoi(arg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "remapctl: invalid context index %q\n", arg)
				return 1
			}
			indices = append(indices, idx)
		}
		return withClient(socketPath, func(c *ipc.Client) error {
			return c.SendActiveContexts(indices)
		})

	case "actions":
		return cmdActions(socketPath)

	case "ping":
		return withClient(socketPath, func(c *ipc.Client) error {
			return c.Ping()
		})

	case "help", "-h", "--help":
		usage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "remapctl: unknown command %q\n\n", args[0])
		usage()
		return 1
	}
}

func usage() {
	fmt.Println(`remapctl - control the remapd back-end

USAGE:
    remapctl [--socket PATH] <command> [options]

COMMANDS:
    apply <keymap.json>    Validate and push a keymap (--watch re-pushes on change)
    contexts <idx>...      Declare the focus-eligible context indices
    actions                Print triggered actions as they arrive
    check <keymap.json>    Validate a keymap without contacting the daemon
    ping                   Connect and send a ping (the reply is not awaited)
    help                   Show this help message`)
}

// loadKeymap reads and validates a keymap file, returning the raw bytes
// ready to send.
func loadKeymap(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keymap: %w", err)
	}
	if _, err := keymap.Parse(data); err != nil {
		return nil, err
	}
	return data, nil
}

// withClient connects, runs fn, and disconnects.
func withClient(socketPath string, fn func(*ipc.Client) error) int {
	client := ipc.NewClient(socketPath)
	if err := client.Connect(5 * time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "remapctl: %v\n", err)
		return 1
	}
	defer client.Close()

	if err := fn(client); err != nil {
		fmt.Fprintf(os.Stderr, "remapctl: %v\n", err)
		return 1
	}
	return 0
}

func cmdApply(socketPath, path string, watch bool) int {
	data, err := loadKeymap(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "remapctl: %v\n", err)
		return 1
	}

	client := ipc.NewClient(socketPath)
	if err := client.Connect(5 * time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "remapctl: %v\n", err)
		return 1
	}
	defer client.Close()

	if err := client.SendConfiguration(data); err != nil {
		fmt.Fprintf(os.Stderr, "remapctl: %v\n", err)
		return 1
	}
	fmt.Println("keymap applied")

	if !watch {
		return 0
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "remapctl: %v\n", err)
		return 1
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		fmt.Fprintf(os.Stderr, "remapctl: %v\n", err)
		return 1
	}

	for {
		select {
		case <-client.Done():
			fmt.Fprintln(os.Stderr, "remapctl: daemon connection lost")
			return 1
		case event, ok := <-watcher.Events:
			if !ok {
				return 0
			}
			if event.Name != path || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// editors often write in bursts; let the file settle
			time.Sleep(100 * time.Millisecond)
			data, err := loadKeymap(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "remapctl: %v\n", err)
				continue
			}
			if err := client.SendConfiguration(data); err != nil {
				fmt.Fprintf(os.Stderr, "remapctl: %v\n", err)
				return 1
			}
			fmt.Println("keymap re-applied")
		case err, ok := <-watcher.Errors:
			if !ok {
				return 0
			}
			fmt.Fprintf(os.Stderr, "remapctl: watch: %v\n", err)
		}
	}
}

func cmdActions(socketPath string) int {
	client := ipc.NewClient(socketPath)
	if err := client.Connect(5 * time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "remapctl: %v\n", err)
		return 1
	}
	defer client.Close()

	for {
		select {
		case idx := <-client.TriggeredActions():
			fmt.Printf("action %d\n", idx)
		case <-client.Done():
			return 0
		}
	}
}
